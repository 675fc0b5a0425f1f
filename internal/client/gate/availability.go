package gate

import (
	"context"
	"sync"
	"time"

	"github.com/gamefolio/backend/internal/apperr"
	"github.com/gamefolio/backend/internal/client/credentials"
	rules "github.com/gamefolio/backend/internal/gate"
)

// DefaultDebounce is the quiet period before a username is checked.
const DefaultDebounce = 500 * time.Millisecond

// Checker answers whether a username is free.
type Checker interface {
	UsernameAvailable(ctx context.Context, name string) (credentials.Availability, error)
}

// Result is the state of one availability query.
type Result struct {
	Generation   uint64
	Input        string
	Pending      bool
	Availability credentials.Availability
	Err          error
}

// Availability debounces username checks. Each input starts a new
// generation and cancels the previous one; only the newest generation's
// result is published.
type Availability struct {
	checker Checker
	delay   time.Duration

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     Result
	results    chan Result
}

// NewAvailability constructs a debouncer. A zero delay selects
// DefaultDebounce.
func NewAvailability(checker Checker, delay time.Duration) *Availability {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Availability{checker: checker, delay: delay, results: make(chan Result, 1)}
}

// Results streams published results. A slow reader sees only the newest.
func (a *Availability) Results() <-chan Result { return a.results }

// Latest returns the most recent state.
func (a *Availability) Latest() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Input records a keystroke and returns its generation. Names failing the
// local rule are answered at once without a request.
func (a *Availability) Input(ctx context.Context, name string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	generation := a.generation

	if err := rules.ValidateUsername(name); err != nil {
		a.publishLocked(Result{
			Generation:   generation,
			Input:        name,
			Availability: credentials.Availability{Username: name, Message: apperr.As(err).Message},
		})
		return generation
	}

	a.publishLocked(Result{Generation: generation, Input: name, Pending: true})

	queryCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.query(queryCtx, generation, name)
	return generation
}

func (a *Availability) query(ctx context.Context, generation uint64, name string) {
	timer := time.NewTimer(a.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	availability, err := a.checker.UsernameAvailable(ctx, name)

	a.mu.Lock()
	defer a.mu.Unlock()
	if generation != a.generation {
		return
	}
	a.cancel = nil
	a.publishLocked(Result{Generation: generation, Input: name, Availability: availability, Err: err})
}

func (a *Availability) publishLocked(r Result) {
	a.latest = r
	select {
	case a.results <- r:
	default:
		select {
		case <-a.results:
		default:
		}
		a.results <- r
	}
}

// Resolve checks name and waits for its result.
func (a *Availability) Resolve(ctx context.Context, name string) (Result, error) {
	generation := a.Input(ctx, name)
	for {
		if r := a.Latest(); r.Generation == generation && !r.Pending {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case r := <-a.results:
			if r.Generation == generation && !r.Pending {
				return r, nil
			}
		}
	}
}

// CanSubmit reports whether the latest input is valid and was confirmed
// free.
func (a *Availability) CanSubmit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.latest
	return r.Generation == a.generation &&
		!r.Pending &&
		r.Err == nil &&
		r.Availability.Available &&
		rules.ValidateUsername(r.Input) == nil
}

// Close cancels any query in flight.
func (a *Availability) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}
