package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := newConnPool(2)
	ctx := context.Background()

	if err := p.acquire(ctx, time.Second); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if err := p.acquire(ctx, time.Second); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	// Pool exhausted: the non-blocking path reports busy immediately.
	if err := p.acquire(ctx, 0); !errors.Is(err, model.ErrStoreBusy) {
		t.Errorf("err = %v, want ErrStoreBusy", err)
	}

	p.release()
	if err := p.acquire(ctx, 0); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestPoolAcquireTimeout(t *testing.T) {
	p := newConnPool(1)
	ctx := context.Background()

	if err := p.acquire(ctx, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	start := time.Now()
	err := p.acquire(ctx, 20*time.Millisecond)
	if !errors.Is(err, model.ErrPoolTimeout) {
		t.Errorf("err = %v, want ErrPoolTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("timed out before the deadline")
	}
}

func TestPoolAcquireContextCancel(t *testing.T) {
	p := newConnPool(1)
	if err := p.acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := p.acquire(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNoWaitViewSharesPool(t *testing.T) {
	s := newTestStore(t)
	nw := s.NoWait()

	if nw.timeout != 0 {
		t.Errorf("timeout = %v, want 0", nw.timeout)
	}
	if nw.pool != s.pool {
		t.Error("NoWait view must share the pool with its parent")
	}
	if nw.db != s.db {
		t.Error("NoWait view must share the db handle")
	}

	// Drain the shared pool through the parent; the no-wait view then
	// fails fast instead of queueing.
	for i := 0; i < defaultPoolSize; i++ {
		if err := s.pool.acquire(context.Background(), time.Second); err != nil {
			t.Fatalf("drain %d: %v", i, err)
		}
	}
	_, err := nw.Get(context.Background(), "any")
	if !errors.Is(err, model.ErrStoreBusy) {
		t.Errorf("err = %v, want ErrStoreBusy", err)
	}
	for i := 0; i < defaultPoolSize; i++ {
		s.pool.release()
	}
}
