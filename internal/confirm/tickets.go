// Package confirm implements the confirmation step in front of destructive
// actions: short-lived signed tickets for HTTP callers and a y/N prompt for
// the CLI.
package confirm

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is how long an issued ticket can be redeemed.
const DefaultTTL = 60 * time.Second

const issuer = "warpdeck"

// ErrInvalidTicket is returned for tickets that are malformed, expired,
// issued for another action, or already redeemed.
var ErrInvalidTicket = errors.New("invalid confirmation ticket")

// Claims binds a ticket to one action.
type Claims struct {
	Action string `json:"action"`
	jwt.RegisteredClaims
}

// Tickets issues and redeems HS256 confirmation tickets. The signing key is
// random per process, so tickets do not survive a restart.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time
}

// NewTickets creates a ticket issuer with a fresh random key.
func NewTickets(ttl time.Duration) (*Tickets, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating ticket key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tickets{secret: secret, ttl: ttl, now: time.Now, used: make(map[string]time.Time)}, nil
}

// Issue returns a signed ticket for action and its expiry.
func (t *Tickets) Issue(action string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   action,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing ticket: %w", err)
	}
	return signed, exp, nil
}

// Redeem validates token for action and marks it used. A ticket redeems once.
func (t *Tickets) Redeem(token, action string) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if claims.Action != action {
		return fmt.Errorf("%w: issued for %q", ErrInvalidTicket, claims.Action)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, exp := range t.used {
		if now.After(exp) {
			delete(t.used, id)
		}
	}
	if _, seen := t.used[claims.ID]; seen {
		return fmt.Errorf("%w: already used", ErrInvalidTicket)
	}
	t.used[claims.ID] = claims.ExpiresAt.Time
	return nil
}
