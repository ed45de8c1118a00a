package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestCronSchedulerRunsJobWithStartContext(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, nil)

	type ctxKey struct{}
	ran := make(chan any, 1)
	if err := s.Add("* * * * * *", func(ctx context.Context) {
		select {
		case ran <- ctx.Value(ctxKey{}):
		default:
		}
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "base")
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	select {
	case v := <-ran:
		if v != "base" {
			t.Fatalf("job got context value %v", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(nil, nil)
	if err := s.Add("not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestCronSchedulerStopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewCronScheduler(time.UTC, nil).Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
