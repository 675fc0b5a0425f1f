// Package session tracks who is signed in and which first-run steps they
// still owe. One goroutine owns the state; readers receive immutable
// snapshots.
package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/gamefolio/backend/internal/client/credentials"
	"github.com/gamefolio/backend/internal/gate"
	"github.com/gamefolio/backend/internal/models"
)

// Status is the coarse session state.
type Status int

const (
	Loading Status = iota
	Anonymous
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "loading"
	}
}

// Snapshot is a point-in-time view of the session. Values are copies and
// never change after they are published.
type Snapshot struct {
	Status     Status
	Generation uint64
	Session    *credentials.Session
	Profile    *models.Profile
	Gate       gate.State
}

// UserID returns the signed-in user's id, or "".
func (s Snapshot) UserID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.User.ID
}

// Source is the credential client surface the store consumes.
type Source interface {
	Session() *credentials.Session
	Subscribe() (<-chan credentials.Event, func())
	Profile(ctx context.Context) (credentials.Me, error)
}

type lookupResult struct {
	generation uint64
	me         credentials.Me
	err        error
}

// ErrStopped is returned by mutations sent after Run has returned.
var ErrStopped = errors.New("session store stopped")

// Store is the session context.
type Store struct {
	source Source
	logger *slog.Logger

	mu       sync.RWMutex
	current  Snapshot
	watchers map[chan Snapshot]struct{}

	mutations chan func()
	done      chan struct{}
	stopOnce  sync.Once

	// Owned by the Run goroutine.
	generation   uint64
	cancelLookup context.CancelFunc
	results      chan lookupResult
}

// NewStore constructs a store in the Loading state. Call Run to start it.
func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source:    source,
		logger:    logger,
		watchers:  make(map[chan Snapshot]struct{}),
		mutations: make(chan func()),
		done:      make(chan struct{}),
		results:   make(chan lookupResult, 1),
	}
}

// Run consumes credential events until ctx ends.
func (s *Store) Run(ctx context.Context) error {
	events, unsubscribe := s.source.Subscribe()
	defer unsubscribe()
	defer s.stopOnce.Do(func() { close(s.done) })

	lookupCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	if initial := s.source.Session(); initial != nil {
		s.handle(lookupCtx, credentials.Event{Type: credentials.EventSignedIn, Session: initial})
	} else {
		s.handle(lookupCtx, credentials.Event{Type: credentials.EventSignedOut})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(lookupCtx, ev)
		case res := <-s.results:
			s.resolve(res)
		case mutate := <-s.mutations:
			mutate()
		}
	}
}

func (s *Store) handle(ctx context.Context, ev credentials.Event) {
	s.generation++
	if s.cancelLookup != nil {
		s.cancelLookup()
		s.cancelLookup = nil
	}

	if ev.Type == credentials.EventSignedOut || ev.Session == nil {
		s.publish(Snapshot{Status: Anonymous, Generation: s.generation})
		return
	}

	next := s.Current()
	next.Generation = s.generation
	next.Session = cloneSession(ev.Session)
	if next.Status != Authenticated || next.UserID() != ev.Session.User.ID {
		next.Status = Loading
		next.Profile = nil
		next.Gate = gate.State{}
	}
	s.publish(next)

	lookupCtx, cancel := context.WithCancel(ctx)
	s.cancelLookup = cancel
	generation := s.generation
	go func() {
		me, err := s.source.Profile(lookupCtx)
		select {
		case s.results <- lookupResult{generation: generation, me: me, err: err}:
		case <-lookupCtx.Done():
		}
	}()
}

func (s *Store) resolve(res lookupResult) {
	if res.generation != s.generation {
		return
	}
	s.cancelLookup = nil

	next := s.Current()
	next.Status = Authenticated
	if res.err != nil {
		s.logger.Warn("profile lookup failed, gating every step", "user_id", next.UserID(), "error", res.err)
		next.Profile = nil
		next.Gate = gate.State{NeedsUsername: true, NeedsOnboarding: true}
		s.publish(next)
		return
	}
	profile := cloneProfile(res.me.Profile)
	next.Profile = &profile
	next.Gate = gate.Derive(profile)
	s.publish(next)
}

// MarkUsernameSet applies a profile returned by a successful username save.
func (s *Store) MarkUsernameSet(ctx context.Context, profile models.Profile) error {
	return s.applySaved(ctx, profile)
}

// MarkOnboarded applies a profile returned by a successful onboarding save.
func (s *Store) MarkOnboarded(ctx context.Context, profile models.Profile) error {
	return s.applySaved(ctx, profile)
}

// applySaved re-derives the gate from just-saved data and supersedes any
// lookup still in flight.
func (s *Store) applySaved(ctx context.Context, profile models.Profile) error {
	applied := make(chan struct{})
	mutate := func() {
		defer close(applied)
		next := s.Current()
		if next.Status != Authenticated || next.UserID() != profile.UserID {
			return
		}
		s.generation++
		if s.cancelLookup != nil {
			s.cancelLookup()
			s.cancelLookup = nil
		}
		p := cloneProfile(profile)
		next.Generation = s.generation
		next.Profile = &p
		next.Gate = gate.Derive(p)
		s.publish(next)
	}

	select {
	case s.mutations <- mutate:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the latest snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Watch streams snapshots starting with the current one. A slow reader only
// ever sees the newest snapshot.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	ch <- s.current.clone()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, ch)
			s.mu.Unlock()
		})
	}
}

// Await blocks until the session leaves the Loading state.
func (s *Store) Await(ctx context.Context) (Snapshot, error) {
	updates, stop := s.Watch()
	defer stop()
	for {
		select {
		case snap := <-updates:
			if snap.Status != Loading {
				return snap, nil
			}
		case <-s.done:
			return s.Current(), ErrStopped
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

func (s *Store) publish(next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
	for ch := range s.watchers {
		snap := next.clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Session = cloneSession(s.Session)
	if s.Profile != nil {
		p := cloneProfile(*s.Profile)
		out.Profile = &p
	}
	return out
}

func cloneSession(in *credentials.Session) *credentials.Session {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneProfile(in models.Profile) models.Profile {
	out := in
	if in.Username != nil {
		name := *in.Username
		out.Username = &name
	}
	out.FavoriteGames = slices.Clone(in.FavoriteGames)
	out.SocialLinks = maps.Clone(in.SocialLinks)
	return out
}
