package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func tripped(t *testing.T, cooldown time.Duration) *CircuitBreaker {
	t.Helper()
	cb := New(Config{Name: "lrclib", Threshold: 2, Cooldown: cooldown, HalfOpenTimeout: 100 * time.Millisecond})
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN state, got %s", cb.State())
	}
	return cb
}

func TestNew_Defaults(t *testing.T) {
	cb := New(Config{})

	if cb.threshold != 5 {
		t.Errorf("Expected default threshold 5, got %d", cb.threshold)
	}
	if cb.cooldown != 5*time.Minute {
		t.Errorf("Expected default cooldown 5m, got %v", cb.cooldown)
	}
	if cb.halfOpenTimeout != 30*time.Second {
		t.Errorf("Expected default halfOpenTimeout 30s, got %v", cb.halfOpenTimeout)
	}
	if cb.Name() != "default" {
		t.Errorf("Expected default name 'default', got %q", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 1; i < 3; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Fatalf("Expected CLOSED after %d failures", i)
		}
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected Allow() to return false in OPEN state")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	if cb.Failures() != 0 {
		t.Errorf("Expected 0 failures after success, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name     string
		outcome  func(cb *CircuitBreaker)
		expected State
	}{
		{"Probe success closes", (*CircuitBreaker).RecordSuccess, StateClosed},
		{"Probe failure reopens", (*CircuitBreaker).RecordFailure, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := tripped(t, 50*time.Millisecond)
			time.Sleep(60 * time.Millisecond)

			if !cb.Allow() {
				t.Fatal("Expected the probe request to be allowed")
			}
			if cb.Allow() {
				t.Error("Expected a second request in HALF-OPEN to be blocked")
			}

			tt.outcome(cb)
			if cb.State() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenTimeout(t *testing.T) {
	cb := tripped(t, 50*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	cb.Allow()

	remaining := cb.TimeUntilRetry()
	if remaining <= 0 || remaining > 100*time.Millisecond {
		t.Errorf("Expected positive time until retry in HALF-OPEN, got %v", remaining)
	}

	time.Sleep(110 * time.Millisecond)

	if cb.Allow() {
		t.Error("Expected Allow() to return false after half-open timeout")
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN state after half-open timeout, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := tripped(t, time.Minute)
	cb.Reset()

	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("Expected CLOSED with 0 failures after reset, got %s/%d", cb.State(), cb.Failures())
	}
	if !cb.halfOpenStart.IsZero() {
		t.Error("Expected halfOpenStart cleared after Reset()")
	}
	if !cb.Allow() {
		t.Error("Expected Allow() to return true after reset")
	}
}

func TestCircuitBreaker_TimeUntilRetry(t *testing.T) {
	cb := New(Config{Threshold: 2, Cooldown: 100 * time.Millisecond})

	if cb.TimeUntilRetry() != 0 {
		t.Errorf("Expected 0 time until retry in CLOSED state, got %v", cb.TimeUntilRetry())
	}

	cb.RecordFailure()
	cb.RecordFailure()

	remaining := cb.TimeUntilRetry()
	if remaining <= 0 || remaining > 100*time.Millisecond {
		t.Errorf("Expected positive time until retry, got %v", remaining)
	}

	time.Sleep(110 * time.Millisecond)
	if cb.TimeUntilRetry() != 0 {
		t.Errorf("Expected 0 time until retry after cooldown, got %v", cb.TimeUntilRetry())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cb := New(Config{
		Name:      "spotify_lyrics",
		Threshold: 2,
		Cooldown:  50 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()
	cb.RecordSuccess()

	expected := []string{
		"spotify_lyrics:CLOSED->OPEN",
		"spotify_lyrics:OPEN->HALF-OPEN",
		"spotify_lyrics:HALF-OPEN->CLOSED",
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, transitions)
	}
	for i := range expected {
		if transitions[i] != expected[i] {
			t.Errorf("Transition %d: expected %q, got %q", i, expected[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	errBoom := errors.New("boom")
	errMiss := errors.New("not found")
	notMiss := func(err error) bool { return !errors.Is(err, errMiss) }

	cb := New(Config{Threshold: 2, Cooldown: time.Minute})

	if err := cb.Execute(func() error { return errMiss }, notMiss); !errors.Is(err, errMiss) {
		t.Errorf("Expected the function's error back, got %v", err)
	}
	if cb.Failures() != 0 {
		t.Errorf("Expected ignored errors not to count, got %d failures", cb.Failures())
	}

	cb.Execute(func() error { return errBoom }, notMiss)
	cb.Execute(func() error { return errBoom }, nil)
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN after two failures, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected the function not to run while OPEN")
	}
}

func TestCircuitBreaker_Status(t *testing.T) {
	cb := New(Config{Name: "lrclib", Threshold: 3, Cooldown: time.Minute})
	cb.RecordFailure()

	status := cb.Status()
	if status.Name != "lrclib" || status.State != "CLOSED" || status.Failures != 1 || status.Threshold != 3 {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, tt.state.String())
		}
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{Threshold: 100, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				cb.Allow()
				cb.RecordFailure()
				cb.RecordSuccess()
				cb.Status()
			}
		}()
	}
	wg.Wait()

	state := cb.State()
	if state != StateClosed && state != StateOpen && state != StateHalfOpen {
		t.Errorf("Invalid state after concurrent access: %v", state)
	}
}
