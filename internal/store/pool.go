package store

import (
	"context"
	"time"

	"github.com/mnemos-dev/mnemos/internal/model"
)

// connPool bounds the number of in-flight operations against the single
// underlying store handle. database/sql multiplexes connections itself;
// the pool exists so acquisition can fail fast instead of queueing
// unboundedly behind a busy store.
type connPool struct {
	tokens chan struct{}
}

func newConnPool(size int) *connPool {
	if size <= 0 {
		size = defaultPoolSize
	}
	p := &connPool{tokens: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// acquire takes a token, waiting up to timeout. A zero timeout is a
// non-blocking try: contention returns ErrStoreBusy immediately, which
// latency-sensitive callers treat as "skip, do not retry synchronously".
// A positive timeout that elapses returns ErrPoolTimeout.
func (p *connPool) acquire(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		select {
		case <-p.tokens:
			return nil
		default:
			return model.ErrStoreBusy
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.tokens:
		return nil
	case <-timer.C:
		return model.ErrPoolTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *connPool) release() {
	p.tokens <- struct{}{}
}
