package session

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	seen := make(map[string]bool)
	for n := 0; n < 100; n++ {
		s := r.Create(3)
		if s.ID == "" {
			t.Fatal("session id is empty")
		}
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
		if s.TotalChunks != 3 {
			t.Errorf("TotalChunks = %d, want 3", s.TotalChunks)
		}
		if s.SentChunks() != 0 {
			t.Errorf("SentChunks = %d, want 0", s.SentChunks())
		}
	}

	if r.Len() != 100 {
		t.Errorf("Len = %d, want 100", r.Len())
	}

	// Drain so timers don't outlive the test.
	for id := range seen {
		r.Remove(id)
	}
}

func TestRegistry_CompleteSettlesOnce(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s := r.Create(2)

	if !r.Complete(s.ID, `{"success":true}`) {
		t.Fatal("Complete reported session not found")
	}

	result := <-s.Done()
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Response != `{"success":true}` {
		t.Errorf("Response = %q", result.Response)
	}

	if _, ok := r.Get(s.ID); ok {
		t.Error("session still registered after completion")
	}

	// Duplicate completion is a silent no-op.
	if r.Complete(s.ID, "again") {
		t.Error("second Complete should report not found")
	}
	// Expiry after completion is equally a no-op.
	if r.Expire(s.ID) {
		t.Error("Expire after Complete should report not found")
	}
}

func TestRegistry_FailDeliversError(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s := r.Create(5)

	sendErr := errors.New("transport send failed")
	if !r.Fail(s.ID, sendErr) {
		t.Fatal("Fail reported session not found")
	}

	result := <-s.Done()
	if !errors.Is(result.Err, sendErr) {
		t.Errorf("Err = %v, want %v", result.Err, sendErr)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_ExpireProducesTimeoutError(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s := r.Create(2)
	s.MarkSent()

	if !r.Expire(s.ID) {
		t.Fatal("Expire reported session not found")
	}

	result := <-s.Done()
	if !errors.Is(result.Err, ErrTimeout) {
		t.Errorf("Err = %v, want ErrTimeout", result.Err)
	}

	var timeoutErr *TimeoutError
	if !errors.As(result.Err, &timeoutErr) {
		t.Fatal("error is not a *TimeoutError")
	}
	if timeoutErr.SessionID != s.ID {
		t.Errorf("SessionID = %q, want %q", timeoutErr.SessionID, s.ID)
	}
}

func TestRegistry_PerSessionTimerFires(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, nil)
	s := r.Create(2)

	select {
	case result := <-s.Done():
		if !errors.Is(result.Err, ErrTimeout) {
			t.Errorf("Err = %v, want ErrTimeout", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("per-session timer never fired")
	}

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s := r.Create(1)

	r.Remove(s.ID)
	r.Remove(s.ID)
	r.Remove("never-existed")

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_SessionIsolation(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	a := r.Create(2)
	b := r.Create(3)

	if !r.Complete(a.ID, "for-a") {
		t.Fatal("Complete(a) failed")
	}

	resultA := <-a.Done()
	if resultA.Response != "for-a" {
		t.Errorf("a.Response = %q", resultA.Response)
	}

	// b is untouched by a's completion.
	if _, ok := r.Get(b.ID); !ok {
		t.Fatal("b removed by a's completion")
	}
	select {
	case <-b.Done():
		t.Fatal("b settled by a's completion")
	default:
	}

	r.Remove(b.ID)
}
