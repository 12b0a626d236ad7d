package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/quill/pkg/failure"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndGet(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	e := NewEntry(SourceCLI, "")
	e.Fingerprint = "abc123"
	e.Finish([]string{"3", "hello"}, 12, nil)

	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := j.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Source != SourceCLI || got.Fingerprint != "abc123" || got.Steps != 12 {
		t.Errorf("entry = %+v", got)
	}
	if len(got.Outputs) != 2 || got.Outputs[0] != "3" || got.Outputs[1] != "hello" {
		t.Errorf("outputs = %v", got.Outputs)
	}
	if got.Failed() {
		t.Error("successful run reported as failed")
	}
	if got.Started.UnixNano() != e.Started.UnixNano() {
		t.Errorf("started = %v, want %v", got.Started, e.Started)
	}
}

func TestRecordFailure(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	e := NewEntry(SourceService, "session-1")
	e.Finish(nil, 3, failure.Runtimef(failure.TypeMismatch, 4, "unsupported operand types for ADD: integer and boolean"))
	if err := j.Record(ctx, e); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := j.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Failed() {
		t.Fatal("failed run not reported as failed")
	}
	if got.ErrorKind != "runtime error" || got.ErrorCode != string(failure.TypeMismatch) {
		t.Errorf("error kind/code = %q/%q", got.ErrorKind, got.ErrorCode)
	}
	if got.Outputs == nil || len(got.Outputs) != 0 {
		t.Errorf("outputs = %#v, want empty", got.Outputs)
	}
}

func TestGetMissing(t *testing.T) {
	j := openTemp(t)
	if _, err := j.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestQueries(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Now()

	for i, s := range []string{"a", "b", "a"} {
		e := &Entry{
			SessionID:   s,
			Source:      SourceService,
			Fingerprint: "fp-" + s,
			Started:     base.Add(time.Duration(i) * time.Second),
		}
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	n, err := j.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].SessionID != "a" || recent[1].SessionID != "b" {
		t.Errorf("recent = %v", recent)
	}

	session, err := j.BySession(ctx, "a")
	if err != nil {
		t.Fatalf("BySession failed: %v", err)
	}
	if len(session) != 2 || !session[0].Started.Before(session[1].Started) {
		t.Errorf("session a = %v", session)
	}

	byFP, err := j.ByFingerprint(ctx, "fp-b")
	if err != nil {
		t.Fatalf("ByFingerprint failed: %v", err)
	}
	if len(byFP) != 1 {
		t.Errorf("fp-b runs = %d, want 1", len(byFP))
	}
}

func TestInMemoryJournal(t *testing.T) {
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer j.Close()

	if err := j.Record(context.Background(), NewEntry(SourceStream, "")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if n, _ := j.Count(context.Background()); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
