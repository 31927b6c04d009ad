/*
@Author: Lzww
@LastEditTime: 2025-10-18 11:05:19
@Description: Deadline scheduler delivering simulated kernel completions
@Language: Go 1.23.4
*/

package simdev

import (
	"container/heap"
	"sync"
	"time"
)

// completion is a function due at a wall clock deadline
type completion struct {
	fire func()
	at   time.Time
}

type completionHeap []completion

func (h completionHeap) Len() int           { return len(h) }
func (h completionHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h completionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *completionHeap) Push(x any) {
	*h = append(*h, x.(completion))
}

func (h *completionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1].fire = nil
	*h = old[:n-1]
	return x
}

// Timer runs functions at their deadline. Put never blocks: new entries are
// staged under a lock and handed to the scheduling goroutines in batches.
type Timer struct {
	staged    []completion
	stageLock sync.Mutex
	chNotify  chan struct{}

	chDue chan completion

	closeOnce sync.Once
	die       chan struct{}
}

// NewTimer starts a timer with parallel scheduling goroutines
func NewTimer(parallel int) *Timer {
	if parallel < 1 {
		parallel = 1
	}
	t := &Timer{
		chNotify: make(chan struct{}, 1),
		chDue:    make(chan completion),
		die:      make(chan struct{}),
	}
	for i := 0; i < parallel; i++ {
		go t.sched()
	}
	go t.feed()
	return t
}

// sched keeps a deadline heap and fires every entry once it is due
func (t *Timer) sched() {
	timer := time.NewTimer(0)
	defer timer.Stop()

	var pending completionHeap

	// Reset never delivers a stale expiry since Go 1.23, no draining needed
	for {
		select {
		case c := <-t.chDue:
			now := time.Now()
			if !c.at.After(now) {
				go c.fire()
				continue
			}
			heap.Push(&pending, c)
			timer.Reset(pending[0].at.Sub(now))
		case now := <-timer.C:
			for pending.Len() > 0 {
				if pending[0].at.After(now) {
					timer.Reset(pending[0].at.Sub(now))
					break
				}
				c := heap.Pop(&pending).(completion)
				go c.fire()
			}
		case <-t.die:
			return
		}
	}
}

// feed moves staged entries to the scheduling goroutines
func (t *Timer) feed() {
	var batch []completion
	for {
		select {
		case <-t.chNotify:
			t.stageLock.Lock()
			batch = append(batch[:0], t.staged...)
			clear(t.staged)
			t.staged = t.staged[:0]
			t.stageLock.Unlock()

			for i := range batch {
				select {
				case t.chDue <- batch[i]:
					batch[i].fire = nil
				case <-t.die:
					return
				}
			}
		case <-t.die:
			return
		}
	}
}

// Put schedules f to run at deadline; a deadline in the past runs f at once
func (t *Timer) Put(f func(), deadline time.Time) {
	t.stageLock.Lock()
	t.staged = append(t.staged, completion{fire: f, at: deadline})
	t.stageLock.Unlock()

	select {
	case t.chNotify <- struct{}{}:
	default:
	}
}

// After schedules f to run once d has elapsed
func (t *Timer) After(d time.Duration, f func()) {
	t.Put(f, time.Now().Add(d))
}

// Close stops the timer. Entries not yet fired are dropped.
func (t *Timer) Close() {
	t.closeOnce.Do(func() {
		close(t.die)
	})
}
