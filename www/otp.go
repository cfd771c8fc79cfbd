package www

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errCodeRejected = errors.New("code rejected")

const (
	defaultOTPLifetime    = 5 * time.Minute
	defaultOTPMaxAttempts = 3
)

type issuedCode struct {
	code     string
	expires  time.Time
	attempts int
}

// otpIssuer mints and checks one-time codes per target (order or booking).
// Delivery to the user (SMS/email) is out of band; the hub only stores what
// it issued. Lifetime and the attempt ceiling come from the verify config.
type otpIssuer struct {
	lifetime    time.Duration
	maxAttempts int

	mu    sync.Mutex
	codes map[string]issuedCode
}

func newOTPIssuer(maxAttempts int, lifetime time.Duration) *otpIssuer {
	if maxAttempts <= 0 {
		maxAttempts = defaultOTPMaxAttempts
	}
	if lifetime <= 0 {
		lifetime = defaultOTPLifetime
	}
	return &otpIssuer{
		lifetime:    lifetime,
		maxAttempts: maxAttempts,
		codes:       make(map[string]issuedCode),
	}
}

// Issue mints a 6-digit code for the target, replacing any prior one.
func (o *otpIssuer) Issue(targetID string) (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	code := fmt.Sprintf("%06d", n%1000000)

	o.mu.Lock()
	o.codes[targetID] = issuedCode{code: code, expires: time.Now().Add(o.lifetime)}
	o.mu.Unlock()
	return code, nil
}

// Check validates a code against the last one issued for the target. A
// matching code is consumed; so is one that exhausts the attempt ceiling.
func (o *otpIssuer) Check(targetID, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	issued, ok := o.codes[targetID]
	if !ok || time.Now().After(issued.expires) {
		delete(o.codes, targetID)
		return errCodeRejected
	}
	if subtle.ConstantTimeCompare([]byte(issued.code), []byte(code)) != 1 {
		issued.attempts++
		if issued.attempts >= o.maxAttempts {
			delete(o.codes, targetID)
		} else {
			o.codes[targetID] = issued
		}
		return errCodeRejected
	}
	delete(o.codes, targetID)
	return nil
}
