package rpcgate

import (
	"context"
	"sync"
)

// Future is the deferred-result primitive of the proxy pipeline. A backend
// binding may complete it eagerly (the call answer was already available)
// or later from another goroutine; consumers observe both cases uniformly
// and never dedicate a thread to waiting.
type Future struct {
	done chan struct{}
	once sync.Once

	val any
	err error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture returns an already-resolved Future holding val.
func CompletedFuture(val any) *Future {
	f := NewFuture()
	f.Complete(val)
	return f
}

// FailedFuture returns an already-failed Future holding err.
func FailedFuture(err error) *Future {
	f := NewFuture()
	f.Fail(err)
	return f
}

// Complete resolves the Future with val. Only the first Complete or Fail
// takes effect; it reports whether this call was the one that resolved it.
func (f *Future) Complete(val any) bool {
	resolved := false
	f.once.Do(func() {
		f.val = val
		resolved = true
		close(f.done)
	})
	return resolved
}

// Fail resolves the Future with err. Same once-semantics as Complete.
func (f *Future) Fail(err error) bool {
	resolved := false
	f.once.Do(func() {
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the Future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the Future already holds an outcome.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the Future resolves or ctx is done. Cancellation only
// abandons the wait; the in-flight call itself is not aborted.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.val, f.err
	}
}

// then derives a new Future by applying fn to the outcome. When the parent
// is already resolved, fn runs inline so an eagerly-completed call is never
// re-scheduled; otherwise a goroutine applies it on resolution.
func (f *Future) then(fn func(val any, err error) (any, error)) *Future {
	select {
	case <-f.done:
		val, err := fn(f.val, f.err)
		if err != nil {
			return FailedFuture(err)
		}
		return CompletedFuture(val)
	default:
	}

	out := NewFuture()
	go func() {
		<-f.done
		val, err := fn(f.val, f.err)
		if err != nil {
			out.Fail(err)
		} else {
			out.Complete(val)
		}
	}()
	return out
}
