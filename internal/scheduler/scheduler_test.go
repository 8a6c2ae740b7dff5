package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_InvalidSpec(t *testing.T) {
	for _, spec := range []string{"", "every day", "* * *", "@every banana"} {
		if _, err := New(spec, func(context.Context) error { return nil }); err == nil {
			t.Errorf("expected error for spec %q", spec)
		}
	}
}

func TestStart_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New("@every 1h", func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an immediate run")
	}
	if next := s.Next(); time.Until(next) < 59*time.Minute {
		t.Errorf("expected next tick about an hour away, got %v", next)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
}

func TestRunNow_SkipsWhileRunning(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	s, err := New("@every 1h", func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started

	s.RunNow()
	s.RunNow()
	if got := runs.Load(); got != 1 {
		t.Errorf("expected overlapping triggers to be skipped, got %d runs", got)
	}

	close(release)
	s.Stop(context.Background())
}

func TestStop_CancelsJobOnDeadline(t *testing.T) {
	cancelled := make(chan error, 1)
	started := make(chan struct{})
	s, err := New("@every 1h", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the running job to be cancelled")
	}
}

func TestStop_BeforeStart(t *testing.T) {
	s, err := New("@daily", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Stop(context.Background())
}
