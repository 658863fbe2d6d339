package session

import (
	"errors"
	"testing"
	"time"
)

// stoppedTimerRegistry creates a session whose one-shot timer is disarmed,
// so only the reaper sweep can expire it.
func stoppedTimerRegistry(t *testing.T, timeout time.Duration) (*Registry, *Session) {
	t.Helper()
	r := NewRegistry(timeout, nil)
	s := r.Create(2)

	r.mu.Lock()
	r.sessions[s.ID].timer.Stop()
	r.mu.Unlock()

	return r, s
}

func TestReaper_ExpiresStaleSessions(t *testing.T) {
	r, s := stoppedTimerRegistry(t, 10*time.Millisecond)

	reaper := NewReaper(r, 5*time.Millisecond, nil)
	reaper.Start()
	defer reaper.Stop()

	select {
	case result := <-s.Done():
		if !errors.Is(result.Err, ErrTimeout) {
			t.Errorf("Err = %v, want ErrTimeout", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper never expired the session")
	}

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestReaper_LeavesFreshSessionsAlone(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	s := r.Create(2)
	defer r.Remove(s.ID)

	reaper := NewReaper(r, 5*time.Millisecond, nil)
	reaper.Start()
	defer reaper.Stop()

	time.Sleep(30 * time.Millisecond)

	if _, ok := r.Get(s.ID); !ok {
		t.Error("fresh session was reaped")
	}
}

func TestReaper_StopIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	reaper := NewReaper(r, time.Millisecond, nil)
	reaper.Start()
	reaper.Stop()
	reaper.Stop()
}

func TestReaper_SweepRacesCompletion(t *testing.T) {
	// A session completed between snapshot and expiry must not settle twice.
	r, s := stoppedTimerRegistry(t, time.Nanosecond)

	time.Sleep(time.Millisecond)
	ids := r.expiredIDs(time.Now())
	if len(ids) != 1 {
		t.Fatalf("expiredIDs = %v, want one id", ids)
	}

	// Completion wins the race.
	if !r.Complete(s.ID, "done") {
		t.Fatal("Complete failed")
	}
	if r.Expire(ids[0]) {
		t.Error("Expire acted on a completed session")
	}

	result := <-s.Done()
	if result.Err != nil || result.Response != "done" {
		t.Errorf("settlement = %+v, want completion", result)
	}
}
