package verify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func codeChecker(want string) Checker {
	return CheckerFunc(func(_ context.Context, _ string, code string) error {
		if code != want {
			return errors.New("mismatch")
		}
		return nil
	})
}

func TestVerifySuccess(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	if id == "" {
		t.Fatal("empty challenge id")
	}
	if st, _ := g.State(id); st != StateIdle {
		t.Fatalf("state = %s, want idle", st)
	}
	if err := g.Verify(context.Background(), id, "123456"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if st, _ := g.State(id); st != StateSuccess {
		t.Fatalf("state = %s, want success", st)
	}
}

func TestVerifySingleUse(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	if err := g.Verify(context.Background(), id, "123456"); err != nil {
		t.Fatal(err)
	}
	if err := g.Verify(context.Background(), id, "123456"); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("second verify err = %v, want ErrAlreadyConsumed", err)
	}
}

func TestVerifyRetryThenSuccess(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	err := g.Verify(context.Background(), id, "000000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if st, _ := g.State(id); st != StateError {
		t.Fatalf("state = %s, want error", st)
	}
	if g.Attempts(id) != 1 {
		t.Fatalf("attempts = %d, want 1", g.Attempts(id))
	}
	// Error state is retryable.
	if err := g.Verify(context.Background(), id, "123456"); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestAttemptCeilingLocks(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	for i := 0; i < 2; i++ {
		if err := g.Verify(context.Background(), id, "wrong"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d err = %v", i+1, err)
		}
	}
	if err := g.Verify(context.Background(), id, "wrong"); !errors.Is(err, ErrLocked) {
		t.Fatalf("third failure err = %v, want ErrLocked", err)
	}
	if st, _ := g.State(id); st != StateLocked {
		t.Fatalf("state = %s, want locked", st)
	}
	// Locked is terminal even with the right code.
	if err := g.Verify(context.Background(), id, "123456"); !errors.Is(err, ErrLocked) {
		t.Fatalf("post-lock err = %v, want ErrLocked", err)
	}
	// A fresh challenge for the same target starts clean.
	id2 := g.BeginChallenge("order-1")
	if err := g.Verify(context.Background(), id2, "123456"); err != nil {
		t.Fatalf("fresh challenge: %v", err)
	}
}

func TestChallengeTimeout(t *testing.T) {
	g := NewGate(codeChecker("123456"), WithTimeout(30*time.Millisecond))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	time.Sleep(100 * time.Millisecond)
	if err := g.Verify(context.Background(), id, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired challenge err = %v, want ErrNotFound", err)
	}
	if _, ok := g.State(id); ok {
		t.Error("expired challenge should be gone")
	}
}

func TestTimeoutDuringCheck(t *testing.T) {
	release := make(chan struct{})
	checker := CheckerFunc(func(context.Context, string, string) error {
		<-release
		return nil
	})
	g := NewGate(checker, WithTimeout(20*time.Millisecond))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	done := make(chan error, 1)
	go func() { done <- g.Verify(context.Background(), id, "123456") }()

	time.Sleep(80 * time.Millisecond) // let the expiry fire mid-check
	close(release)
	if err := <-done; !errors.Is(err, ErrNotFound) {
		t.Fatalf("mid-flight expiry err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentVerifyRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	checker := CheckerFunc(func(context.Context, string, string) error {
		close(entered)
		<-release
		return nil
	})
	g := NewGate(checker)
	defer g.Close()

	id := g.BeginChallenge("order-1")
	done := make(chan error, 1)
	go func() { done <- g.Verify(context.Background(), id, "123456") }()
	<-entered

	if err := g.Verify(context.Background(), id, "123456"); !errors.Is(err, ErrBusy) {
		t.Fatalf("racing verify err = %v, want ErrBusy", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first verify: %v", err)
	}
}

func TestBeginSupersedesPrior(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	old := g.BeginChallenge("order-1")
	fresh := g.BeginChallenge("order-1")
	if err := g.Verify(context.Background(), old, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("superseded challenge err = %v, want ErrNotFound", err)
	}
	if err := g.Verify(context.Background(), fresh, "123456"); err != nil {
		t.Fatalf("fresh challenge: %v", err)
	}
}

func TestCancel(t *testing.T) {
	g := NewGate(codeChecker("123456"))
	defer g.Close()

	id := g.BeginChallenge("order-1")
	g.Cancel(id)
	if err := g.Verify(context.Background(), id, "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancelled challenge err = %v, want ErrNotFound", err)
	}
}
