package invariant

import (
	"errors"
	"fmt"
	"testing"
)

type recordingLogger struct {
	msgs  []string
	attrs [][]any
}

func (r *recordingLogger) Error(msg string, args ...any) {
	r.msgs = append(r.msgs, msg)
	r.attrs = append(r.attrs, args)
}

func TestReport(t *testing.T) {
	log := &recordingLogger{}
	err := Report(log, Errorf("volume %d is %s", 3, "mounted"), "device", 7)

	if !Is(err) {
		t.Fatalf("Is(%v) = false, want true", err)
	}
	if len(log.msgs) != 1 {
		t.Fatalf("logged %d messages, want 1", len(log.msgs))
	}
	if log.msgs[0] != "BUG: invariant violated: volume 3 is mounted" {
		t.Errorf("message = %q", log.msgs[0])
	}
	attrs := log.attrs[0]
	if len(attrs) != 4 || attrs[2] != "bug" || attrs[3] != true {
		t.Errorf("attrs = %v, want device/7 plus bug=true", attrs)
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("mounting: %w", Errorf("x"))
	if !Is(err) {
		t.Error("Is(wrapped) = false, want true")
	}
	if Is(errors.New("plain")) {
		t.Error("Is(plain) = true, want false")
	}
	if Report(nil, Errorf("silent")) == nil {
		t.Error("Report(nil logger) returned nil")
	}
}
