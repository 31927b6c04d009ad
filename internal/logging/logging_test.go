/*
@Author: Lzww
@LastEditTime: 2025-10-18 10:30:02
@Description: Unit tests for logger initialization
@Language: Go 1.23.4
*/

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLevel(t *testing.T) {
	if err := Init("debug", "", false); err != nil {
		t.Fatal(err)
	}
	if Get().GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", Get().GetLevel())
	}

	// 未知级别回退到 info
	if err := Init("loud", "", false); err != nil {
		t.Fatal(err)
	}
	if Get().GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %s, want info", Get().GetLevel())
	}
}

func TestInitLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "wavesim.log")
	if err := Init("info", file, false); err != nil {
		t.Fatal(err)
	}

	WithField("kernel", "vector_add").Info("limiter settled")
	Debugf("not written at info level")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "limiter settled") || !strings.Contains(string(data), "kernel=vector_add") {
		t.Errorf("log file content %q", data)
	}
	if strings.Contains(string(data), "not written") {
		t.Error("debug entry written at info level")
	}
}

func TestInitLogFileError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Init("info", filepath.Join(blocker, "x.log"), false); err == nil {
		t.Error("log file below a regular file accepted")
	}
}
