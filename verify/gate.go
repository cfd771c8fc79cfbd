// Package verify tracks short-lived OTP/QR challenge state used to gate
// sensitive order and booking transitions. Code delivery (SMS/email) and the
// actual code check are external collaborators; the gate owns only the
// challenge lifecycle.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChallengeState is the gate state machine: Idle -> Loading -> {Success | Error},
// with Locked terminal after the attempt ceiling.
type ChallengeState string

const (
	StateIdle    ChallengeState = "idle"
	StateLoading ChallengeState = "loading"
	StateSuccess ChallengeState = "success"
	StateError   ChallengeState = "error"
	StateLocked  ChallengeState = "locked"
)

var (
	// ErrAlreadyConsumed signals a second Verify against a challenge that
	// already succeeded. Success is single-use.
	ErrAlreadyConsumed = errors.New("verify: challenge already consumed")
	// ErrLocked signals the attempt ceiling was breached; a fresh
	// BeginChallenge is required.
	ErrLocked = errors.New("verify: challenge locked")
	// ErrNotFound signals an unknown, cancelled, or timed-out challenge.
	ErrNotFound = errors.New("verify: challenge not found")
	// ErrBusy signals a Verify racing an in-flight Verify on the same
	// challenge.
	ErrBusy = errors.New("verify: verification in progress")
	// ErrInvalidCode wraps a failed code check.
	ErrInvalidCode = errors.New("verify: invalid code")
)

// Checker performs the external code check for a target.
type Checker interface {
	CheckCode(ctx context.Context, targetID, code string) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, targetID, code string) error

func (f CheckerFunc) CheckCode(ctx context.Context, targetID, code string) error {
	return f(ctx, targetID, code)
}

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 60 * time.Second
)

type challenge struct {
	id       string
	targetID string
	state    ChallengeState
	attempts int
	timer    *time.Timer
}

// Gate manages challenges keyed by the order/booking id they guard. One
// active challenge per target; a new BeginChallenge supersedes the old one.
type Gate struct {
	checker     Checker
	maxAttempts int
	timeout     time.Duration

	mu         sync.Mutex
	challenges map[string]*challenge
	byTarget   map[string]string
	closed     bool
}

// Option tunes a Gate.
type Option func(*Gate)

// WithMaxAttempts overrides the attempt ceiling (default 3).
func WithMaxAttempts(n int) Option {
	return func(g *Gate) { g.maxAttempts = n }
}

// WithTimeout overrides the challenge expiry window (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// NewGate creates a gate that checks codes through checker.
func NewGate(checker Checker, opts ...Option) *Gate {
	g := &Gate{
		checker:     checker,
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		challenges:  make(map[string]*challenge),
		byTarget:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BeginChallenge opens a challenge for the target and returns its id. Any
// previous challenge for the same target is discarded.
func (g *Gate) BeginChallenge(targetID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ""
	}
	if oldID, ok := g.byTarget[targetID]; ok {
		g.dropLocked(oldID)
	}

	ch := &challenge{
		id:       uuid.New().String(),
		targetID: targetID,
		state:    StateIdle,
	}
	ch.timer = time.AfterFunc(g.timeout, func() { g.expire(ch.id) })
	g.challenges[ch.id] = ch
	g.byTarget[targetID] = ch.id
	return ch.id
}

// Verify checks a code against the challenge. On success the challenge is
// consumed: exactly one Verify can ever return nil for a given challenge id.
// Failed attempts are retryable until the ceiling, which locks the challenge.
func (g *Gate) Verify(ctx context.Context, challengeID, code string) error {
	g.mu.Lock()
	ch, ok := g.challenges[challengeID]
	if !ok {
		g.mu.Unlock()
		return ErrNotFound
	}
	switch ch.state {
	case StateSuccess:
		g.mu.Unlock()
		return ErrAlreadyConsumed
	case StateLocked:
		g.mu.Unlock()
		return ErrLocked
	case StateLoading:
		g.mu.Unlock()
		return ErrBusy
	}
	ch.state = StateLoading
	targetID := ch.targetID
	g.mu.Unlock()

	err := g.checker.CheckCode(ctx, targetID, code)

	g.mu.Lock()
	defer g.mu.Unlock()

	// The challenge may have timed out while the check was in flight.
	if _, ok := g.challenges[challengeID]; !ok {
		return ErrNotFound
	}

	if err == nil {
		ch.state = StateSuccess
		ch.timer.Stop()
		return nil
	}

	ch.attempts++
	if ch.attempts >= g.maxAttempts {
		ch.state = StateLocked
		ch.timer.Stop()
		log.Printf("verify: challenge for %s locked after %d attempts", targetID, ch.attempts)
		return ErrLocked
	}
	ch.state = StateError
	return fmt.Errorf("%w: %v", ErrInvalidCode, err)
}

// Cancel discards a challenge and releases its expiry timer.
func (g *Gate) Cancel(challengeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropLocked(challengeID)
}

// State reports the current state of a challenge.
func (g *Gate) State(challengeID string) (ChallengeState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.challenges[challengeID]
	if !ok {
		return "", false
	}
	return ch.state, true
}

// Attempts reports the failed attempt count for a challenge.
func (g *Gate) Attempts(challengeID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.challenges[challengeID]; ok {
		return ch.attempts
	}
	return 0
}

// Close discards every challenge and stops all pending timers.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for id := range g.challenges {
		g.dropLocked(id)
	}
}

func (g *Gate) expire(challengeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.challenges[challengeID]
	if !ok {
		return
	}
	log.Printf("verify: challenge for %s timed out", ch.targetID)
	g.dropLocked(challengeID)
}

// dropLocked removes a challenge. Caller holds g.mu.
func (g *Gate) dropLocked(challengeID string) {
	ch, ok := g.challenges[challengeID]
	if !ok {
		return
	}
	ch.timer.Stop()
	delete(g.challenges, challengeID)
	if g.byTarget[ch.targetID] == challengeID {
		delete(g.byTarget, ch.targetID)
	}
}
