package connector

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream boom")

func failing() (interface{}, error)    { return nil, errUpstream }
func succeeding() (interface{}, error) { return "ok", nil }

func TestBreakerPassesThroughWhenClosed(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{})
	result, err := b.Execute(context.Background(), succeeding)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		if _, err := b.Execute(context.Background(), failing); !errors.Is(err, errUpstream) {
			t.Fatalf("attempt %d: err = %v, want upstream error", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	_, err := b.Execute(context.Background(), succeeding)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{MaxFailures: 1, Timeout: 20 * time.Millisecond})

	b.Execute(context.Background(), failing)
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := b.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
}

func TestBreakerRespectsCancelledContext(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Execute(ctx, succeeding)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
