// Package bridge provides single-shot request/response channels that let the
// engine pause one action for a UI decision.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/steward/internal/logging"
)

var (
	// ErrResolved is returned when a request is answered a second time
	ErrResolved = errors.New("request already resolved")
	// ErrTimeout is returned by Ask when nobody answered in time; the
	// fallback answer is returned alongside it
	ErrTimeout = errors.New("confirmation timed out")
)

// Outcome labels reported to observers
const (
	OutcomeAnswered  = "answered"
	OutcomeTimeout   = "timeout"
	OutcomeCancelled = "cancelled"
)

// Request is an immutable payload paired with a write-once answer slot
type Request[Q, A any] struct {
	ID        string
	Bridge    string
	Payload   Q
	CreatedAt time.Time

	once   sync.Once
	done   chan struct{}
	answer A
}

func newRequest[Q, A any](bridge string, payload Q) *Request[Q, A] {
	return &Request[Q, A]{
		ID:        uuid.NewString(),
		Bridge:    bridge,
		Payload:   payload,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Resolve answers the request. Only the first call has an effect.
func (r *Request[Q, A]) Resolve(answer A) error {
	first := false
	r.once.Do(func() {
		r.answer = answer
		close(r.done)
		first = true
	})
	if !first {
		return fmt.Errorf("%s request %s: %w", r.Bridge, r.ID, ErrResolved)
	}
	return nil
}

// Done is closed once the request has an answer
func (r *Request[Q, A]) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether an answer has been recorded
func (r *Request[Q, A]) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the request is answered or ctx ends
func (r *Request[Q, A]) Wait(ctx context.Context) (A, error) {
	select {
	case <-r.done:
		return r.answer, nil
	case <-ctx.Done():
		var zero A
		return zero, ctx.Err()
	}
}

// Bridge publishes requests of one type to UI subscribers
type Bridge[Q, A any] struct {
	name     string
	fallback A
	timeout  time.Duration

	mu       sync.Mutex
	subs     map[int]chan *Request[Q, A]
	nextID   int
	current  *Request[Q, A]
	observer func(bridge, outcome string)
}

// New creates a bridge. fallback is the answer used when a request times out
// or the caller gives up; timeout <= 0 waits indefinitely.
func New[Q, A any](name string, fallback A, timeout time.Duration) *Bridge[Q, A] {
	return &Bridge[Q, A]{
		name:     name,
		fallback: fallback,
		timeout:  timeout,
		subs:     make(map[int]chan *Request[Q, A]),
	}
}

// Name returns the bridge name
func (b *Bridge[Q, A]) Name() string {
	return b.name
}

// Fallback returns the answer used on timeout
func (b *Bridge[Q, A]) Fallback() A {
	return b.fallback
}

// SetObserver registers a callback invoked with each request's outcome
func (b *Bridge[Q, A]) SetObserver(fn func(bridge, outcome string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = fn
}

// Subscribe returns a channel of published requests and a function that
// ends the subscription. Requests that do not fit in the buffer are dropped
// for that subscriber but remain available through Current.
func (b *Bridge[Q, A]) Subscribe(buffer int) (<-chan *Request[Q, A], func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Request[Q, A], buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish creates a request and delivers it to every subscriber. The newest
// request replaces the displayed one; older requests stay resolvable.
func (b *Bridge[Q, A]) Publish(payload Q) *Request[Q, A] {
	req := newRequest[Q, A](b.name, payload)

	b.mu.Lock()
	if b.current != nil && !b.current.Resolved() {
		logging.Debug("bridge", "%s: request %s replaces %s on display", b.name, req.ID, b.current.ID)
	}
	b.current = req
	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- req:
			delivered++
		default:
			logging.Warn("bridge", "%s: subscriber buffer full, request %s not delivered", b.name, req.ID)
		}
	}
	b.mu.Unlock()

	logging.Info("bridge", "%s: published request %s to %d subscriber(s)", b.name, req.ID, delivered)
	return req
}

// Current returns the most recently published request if it is still open
func (b *Bridge[Q, A]) Current() *Request[Q, A] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.current.Resolved() {
		return nil
	}
	return b.current
}

// Ask publishes payload and waits for the answer. When the bridge timeout
// elapses the request is resolved with the fallback answer and ErrTimeout is
// returned with it. When ctx ends the request is closed the same way and
// ctx.Err() is returned.
func (b *Bridge[Q, A]) Ask(ctx context.Context, payload Q) (A, error) {
	req := b.Publish(payload)

	waitCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	answer, err := req.Wait(waitCtx)
	if err == nil {
		b.observe(OutcomeAnswered)
		return answer, nil
	}

	if req.Resolve(b.fallback) != nil {
		// Answered at the same moment the wait ended; the answer stands.
		answer, _ = req.Wait(context.Background())
		b.observe(OutcomeAnswered)
		return answer, nil
	}

	if ctx.Err() != nil {
		b.observe(OutcomeCancelled)
		logging.Info("bridge", "%s: request %s abandoned: %v", b.name, req.ID, ctx.Err())
		return b.fallback, ctx.Err()
	}

	b.observe(OutcomeTimeout)
	logging.Warn("bridge", "%s: request %s unanswered after %s, using fallback", b.name, req.ID, b.timeout)
	return b.fallback, ErrTimeout
}

func (b *Bridge[Q, A]) observe(outcome string) {
	b.mu.Lock()
	fn := b.observer
	b.mu.Unlock()
	if fn != nil {
		fn(b.name, outcome)
	}
}
