package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	logger.Debug("hidden")
	logger.Info("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("DEBUG message leaked through INFO level")
	}
	if !strings.Contains(output, "INFO") || !strings.Contains(output, "shown") {
		t.Errorf("INFO message missing from output: %q", output)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf).WithField("collection", "docs")

	logger.Info("insert", map[string]interface{}{"id": 7})

	output := buf.String()
	if !strings.Contains(output, "collection=docs") {
		t.Errorf("bound field missing: %q", output)
	}
	if !strings.Contains(output, "id=7") {
		t.Errorf("call-site field missing: %q", output)
	}
}

func TestLoggerFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	logger.Info("msg", map[string]interface{}{"zebra": 1, "alpha": 2, "mid": 3})

	output := buf.String()
	a, m, z := strings.Index(output, "alpha="), strings.Index(output, "mid="), strings.Index(output, "zebra=")
	if a < 0 || m < 0 || z < 0 || !(a < m && m < z) {
		t.Errorf("fields not in sorted order: %q", output)
	}
}

func TestLoggerDerivedDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, &buf)
	parent.WithField("child", "only")

	parent.Info("msg")
	if strings.Contains(buf.String(), "child=only") {
		t.Error("derived logger's field leaked into parent")
	}
}

func TestLoggerFormatted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WARN, &buf)

	logger.Warnf("slot %d of %d", 3, 8)
	if !strings.Contains(buf.String(), "slot 3 of 8") {
		t.Errorf("formatted message missing: %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"DEBUG":   DEBUG,
		"info":    INFO,
		"warning": WARN,
		"ERROR":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf)

	if err := logger.LogOperation("compaction", func() error { return nil }); err != nil {
		t.Fatalf("LogOperation returned %v", err)
	}
	if !strings.Contains(buf.String(), "compaction completed") {
		t.Errorf("success entry missing: %q", buf.String())
	}

	buf.Reset()
	fail := errors.New("disk full")
	if err := logger.LogOperation("snapshot", func() error { return fail }); !errors.Is(err, fail) {
		t.Fatalf("LogOperation swallowed the error: %v", err)
	}
	if !strings.Contains(buf.String(), "snapshot failed") || !strings.Contains(buf.String(), "disk full") {
		t.Errorf("failure entry missing: %q", buf.String())
	}
}
