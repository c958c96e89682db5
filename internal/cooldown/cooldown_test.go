package cooldown

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestTrackerSetAndCheck(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now, nil)

	if tr.Check("https://www.reuters.com/a") != nil {
		t.Fatal("expected no cooldown initially")
	}

	tr.Set("https://www.reuters.com/a", 30*time.Second, "403")
	st := tr.Check("https://reuters.com/other")
	if st == nil {
		t.Fatal("expected cooldown to apply to the host without www")
	}
	if st.Host != "reuters.com" || st.Remaining != 30*time.Second {
		t.Fatalf("unexpected status: %+v", st)
	}

	clock.t = clock.t.Add(31 * time.Second)
	if tr.Check("https://reuters.com/a") != nil {
		t.Fatal("expected cooldown to expire")
	}
	if _, ok := tr.until["reuters.com"]; ok {
		t.Fatal("expected expired entry to be evicted")
	}
}

func TestTrackerNeverShortens(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(clock.Now, nil)

	tr.Set("https://example.com/x", 10*time.Minute, "429")
	tr.Set("https://example.com/y", time.Minute, "error")

	st := tr.Check("https://example.com/z")
	if st == nil || st.Remaining != 10*time.Minute {
		t.Fatalf("expected the longer cooldown to remain, got %+v", st)
	}

	tr.Set("https://example.com/y", 20*time.Minute, "429")
	if st := tr.Check("https://example.com/"); st.Remaining != 20*time.Minute {
		t.Fatalf("expected cooldown to be raised, got %v", st.Remaining)
	}
}

func TestTrackerIgnoresInvalidInput(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil, nil)
	tr.Set("", time.Minute, "x")
	tr.Set("https://example.com", 0, "x")
	if len(tr.until) != 0 {
		t.Fatalf("expected no entries, got %v", tr.until)
	}
}
