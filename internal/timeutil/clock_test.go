package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	if got.Before(before) {
		t.Errorf("Now() = %v, before %v", got, before)
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since(start) = %v, want 90s", got)
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tick := c.NewTicker(100 * time.Millisecond)

	select {
	case <-tick.C():
		t.Fatal("ticker fired before period elapsed")
	default:
	}

	c.Advance(100 * time.Millisecond)
	select {
	case <-tick.C():
	default:
		t.Fatal("ticker did not fire after period elapsed")
	}
}

func TestMockTickerStopped(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tick := c.NewTicker(time.Second)
	tick.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-tick.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
