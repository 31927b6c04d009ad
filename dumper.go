/*
@Author: Lzww
@LastEditTime: 2025-10-16 21:48:20
@Description: Data dumper for offline analysis of wave limiter decisions
@Language: Go 1.23.4
*/

package wavelimiter

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const (
	// kernel names longer than this are shortened in trace file names
	maxTraceNameLen = 64

	// prefix kept from a shortened kernel name
	traceNamePrefixLen = 32

	// initial record capacity of an enabled dumper
	traceRecordCapacity = 1024
)

// traceRecord is one line of a trace file
type traceRecord struct {
	time  uint64
	waves uint
	state State
	note  string
}

func (r *traceRecord) appendText(b []byte) []byte {
	if r.note != "" {
		b = append(b, "# "...)
		b = append(b, r.note...)
		return append(b, '\n')
	}
	b = strconv.AppendUint(b, r.time, 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(r.waves), 10)
	b = append(b, ' ', r.state.tag(), '\n')
	return b
}

// DataDumper records execution time, waves per SIMD and state of a wave
// limiter in memory and appends them to a trace file on Flush
type DataDumper struct {
	enable   bool
	fileName string
	records  *RingBuffer[traceRecord]
	log      logrus.FieldLogger
	stats    *Stats
}

func newDataDumper(dir, kernelName string, seq uint, enable bool, log logrus.FieldLogger, stats *Stats) *DataDumper {
	d := &DataDumper{enable: enable, log: log, stats: stats}
	if !enable {
		return d
	}
	d.fileName = filepath.Join(dir, traceFileName(kernelName, seq))
	d.records = NewRingBuffer[traceRecord](traceRecordCapacity)
	return d
}

// Enabled reports whether this data dumper records anything
func (d *DataDumper) Enabled() bool {
	return d.enable
}

// FileName returns the trace file path, empty when disabled
func (d *DataDumper) FileName() string {
	return d.fileName
}

// Pending returns the number of records not yet written
func (d *DataDumper) Pending() int {
	if !d.enable {
		return 0
	}
	return d.records.Len()
}

func (d *DataDumper) addData(t time.Duration, waves uint, state State) {
	if !d.enable {
		return
	}
	d.records.Push(traceRecord{time: uint64(t), waves: waves, state: state})
}

func (d *DataDumper) addNote(note string) {
	if !d.enable {
		return
	}
	d.records.Push(traceRecord{note: note})
}

// Flush appends the buffered records to the trace file. Records are dropped
// even when writing fails, so a broken trace file never grows memory.
func (d *DataDumper) Flush() error {
	if !d.enable {
		return ErrDumpDisabled
	}
	n := d.Pending()
	if n == 0 {
		return nil
	}
	defer d.records.Discard(n)

	if err := d.write(); err != nil {
		incr(&d.stats.DumpErrors)
		return err
	}
	atomic.AddUint64(&d.stats.DumpRecords, uint64(n))
	d.log.WithFields(logrus.Fields{
		"file":    d.FileName(),
		"records": n,
	}).Debug("wave limiter trace written")
	return nil
}

func (d *DataDumper) write() error {
	if err := os.MkdirAll(filepath.Dir(d.fileName), 0755); err != nil {
		return errors.Wrap(err, "creating trace directory")
	}

	f, err := os.OpenFile(d.fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "opening trace file")
	}

	w := bufio.NewWriter(f)
	line := make([]byte, 0, 64)
	d.records.ForEach(func(r *traceRecord) bool {
		line = r.appendText(line[:0])
		_, err = w.Write(line)
		return err == nil
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "writing %s", d.fileName)
}

// traceFileName builds "<kernel>_<seq>.txt". Kernel names that are empty,
// too long or not file name safe are shortened and made unique with a
// BLAKE2b digest of the full name.
func traceFileName(kernelName string, seq uint) string {
	safe := sanitizeName(kernelName)
	if safe == "" || safe != kernelName || len(kernelName) > maxTraceNameLen {
		digest := blake2b.Sum256([]byte(kernelName))
		if len(safe) > traceNamePrefixLen {
			safe = safe[:traceNamePrefixLen]
		}
		if safe == "" {
			safe = "kernel"
		}
		safe = safe + "-" + hex.EncodeToString(digest[:8])
	}
	return fmt.Sprintf("%s_%d.txt", safe, seq)
}

func sanitizeName(name string) string {
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
