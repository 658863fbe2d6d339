package host

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/sluice/wire"
)

func TestProcess_SingleMessagePassesThrough(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	msg := `{"action":"ping","data":{}}`
	result, err := r.Process(msg)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !result.Complete {
		t.Fatal("single message should be complete")
	}
	if result.Payload != msg {
		t.Errorf("Payload = %q", result.Payload)
	}
	if result.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", result.SessionID)
	}
}

func TestProcess_ReassemblesInOrder(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	payload := strings.Repeat("abc", 700)
	fragments, err := wire.Split(payload, 200)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for i, frag := range fragments {
		result, err := r.Process(wire.FormatChunk("sess-1", i, len(fragments), frag))
		if err != nil {
			t.Fatalf("Process(%d) failed: %v", i, err)
		}

		last := i == len(fragments)-1
		if result.Complete != last {
			t.Errorf("chunk %d: Complete = %v", i, result.Complete)
		}
		if last && result.Payload != payload {
			t.Error("assembled payload does not match original")
		}
	}

	if r.PendingSessions() != 0 {
		t.Errorf("PendingSessions = %d, want 0", r.PendingSessions())
	}
}

func TestProcess_ToleratesOutOfOrderArrival(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	frames := []string{
		wire.FormatChunk("sess-2", 2, 3, "C"),
		wire.FormatChunk("sess-2", 0, 3, "A"),
		wire.FormatChunk("sess-2", 1, 3, "B"),
	}

	var final ProcessResult
	for _, frame := range frames {
		result, err := r.Process(frame)
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		final = result
	}

	if !final.Complete {
		t.Fatal("transfer should complete on last missing fragment")
	}
	if final.Payload != "ABC" {
		t.Errorf("Payload = %q, want %q", final.Payload, "ABC")
	}
}

func TestProcess_IgnoresDuplicateChunks(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	if _, err := r.Process(wire.FormatChunk("sess-3", 0, 2, "first")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	// Duplicate index with different content: first write wins.
	if _, err := r.Process(wire.FormatChunk("sess-3", 0, 2, "second")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, err := r.Process(wire.FormatChunk("sess-3", 1, 2, "-tail"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !result.Complete {
		t.Fatal("transfer should be complete")
	}
	if result.Payload != "first-tail" {
		t.Errorf("Payload = %q, want %q", result.Payload, "first-tail")
	}
}

func TestProcess_RejectsMalformedFrames(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	if _, err := r.Process(wire.ChunkPrefix + "garbage"); err == nil {
		t.Error("expected error for malformed chunk frame")
	}
}

func TestProcess_RejectsTotalMismatch(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	if _, err := r.Process(wire.FormatChunk("sess-4", 0, 3, "a")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := r.Process(wire.FormatChunk("sess-4", 1, 5, "b")); err == nil {
		t.Error("expected error for changed chunk total")
	}
}

func TestProcess_SessionsDoNotInterleave(t *testing.T) {
	r := NewReassembler(0, 0, nil)
	defer r.Stop()

	if _, err := r.Process(wire.FormatChunk("sess-a", 0, 2, "a0")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Process(wire.FormatChunk("sess-b", 0, 2, "b0")); err != nil {
		t.Fatal(err)
	}

	resultA, err := r.Process(wire.FormatChunk("sess-a", 1, 2, "a1"))
	if err != nil {
		t.Fatal(err)
	}
	if resultA.Payload != "a0a1" {
		t.Errorf("sess-a payload = %q", resultA.Payload)
	}

	resultB, err := r.Process(wire.FormatChunk("sess-b", 1, 2, "b1"))
	if err != nil {
		t.Fatal(err)
	}
	if resultB.Payload != "b0b1" {
		t.Errorf("sess-b payload = %q", resultB.Payload)
	}
}

func TestSweep_ReportsExpiredPartials(t *testing.T) {
	r := NewReassembler(10*time.Millisecond, time.Hour, nil)
	defer r.Stop()

	var expired []ExpiredPartial
	r.SetOnExpire(func(p ExpiredPartial) { expired = append(expired, p) })

	if _, err := r.Process(wire.FormatChunk("stale-2", 0, 3, "abcde")); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	r.sweep(time.Now())

	if len(expired) != 1 {
		t.Fatalf("expiry hook ran %d times, want 1", len(expired))
	}
	got := expired[0]
	if got.SessionID != "stale-2" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
	if got.TotalChunks != 3 || got.Received != 1 {
		t.Errorf("TotalChunks/Received = %d/%d, want 3/1", got.TotalChunks, got.Received)
	}
	if got.PayloadBytes != len("abcde") {
		t.Errorf("PayloadBytes = %d, want %d", got.PayloadBytes, len("abcde"))
	}
}

func TestStartStop_FromSeparateGoroutines(t *testing.T) {
	r := NewReassembler(0, time.Millisecond, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Start()
	}()
	r.Stop()
	wg.Wait()

	// A second Stop after Start has landed must also be safe.
	r.Stop()
}

func TestSweep_DiscardsExpiredPartials(t *testing.T) {
	r := NewReassembler(10*time.Millisecond, time.Hour, nil)
	defer r.Stop()

	if _, err := r.Process(wire.FormatChunk("stale", 0, 2, "a")); err != nil {
		t.Fatal(err)
	}
	if r.PendingSessions() != 1 {
		t.Fatalf("PendingSessions = %d, want 1", r.PendingSessions())
	}

	time.Sleep(20 * time.Millisecond)
	r.sweep(time.Now())

	if r.PendingSessions() != 0 {
		t.Errorf("PendingSessions = %d, want 0", r.PendingSessions())
	}
}
