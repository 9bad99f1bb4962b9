// Package grant mints and verifies the signed, capability-scoped
// credentials that admit a participant to a room.
//
// A grant is an HS256 JWT signed with the process-wide API secret. The
// issuer claim carries the API key, the subject and token id carry the
// participant identity, and the "video" claim carries the room and the
// capability flags derived from the participant's role.
package grant

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/listenparty/internal/domain"
)

const DefaultTTL = 6 * time.Hour

// NotConfiguredMessage is the exact text surfaced to HTTP clients when the
// signing key pair is absent.
const NotConfiguredMessage = "Environment variables aren't set up correctly"

var (
	ErrEmptyIdentity = errors.New("grant: identity is required")
	ErrEmptyRoom     = errors.New("grant: room is required")
	ErrInvalidGrant  = errors.New("grant: invalid token")
	ErrNoRoomJoin    = errors.New("grant: token does not allow joining a room")
)

// ConfigurationError reports a missing signing key pair. It is fatal to
// the issuance endpoint: no grant is ever produced while it holds.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string { return NotConfiguredMessage }

// Keys is the signing material, read once at process start.
type Keys struct {
	APIKey    string
	APISecret string
}

func (k Keys) missing() []string {
	var out []string
	if k.APIKey == "" {
		out = append(out, "api_key")
	}
	if k.APISecret == "" {
		out = append(out, "api_secret")
	}
	return out
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock fixes the time source; Mint is deterministic for a fixed
// clock and key pair.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

type Issuer struct {
	keys Keys
	ttl  time.Duration
	now  func() time.Time
}

func NewIssuer(keys Keys, opts ...Option) *Issuer {
	i := &Issuer{keys: keys, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) Configured() bool { return len(i.keys.missing()) == 0 }

type videoClaim struct {
	Room string `json:"room,omitempty"`
	domain.Capabilities
}

type claims struct {
	jwt.RegisteredClaims
	Video videoClaim `json:"video"`
}

// Mint issues a grant for identity in room with the capability set of
// role.
func (i *Issuer) Mint(identity, room string, role domain.Role) (string, error) {
	if missing := i.keys.missing(); len(missing) > 0 {
		return "", &ConfigurationError{Missing: missing}
	}
	if identity == "" {
		return "", ErrEmptyIdentity
	}
	if room == "" {
		return "", ErrEmptyRoom
	}
	return i.MintGrant(domain.Grant{
		Identity:     domain.Identity(identity),
		Room:         domain.RoomName(room),
		Capabilities: domain.CapabilitiesFor(role),
	})
}

// MintGrant signs an explicit grant. A zero ExpiresAt is replaced by
// now plus the issuer TTL.
func (i *Issuer) MintGrant(g domain.Grant) (string, error) {
	if missing := i.keys.missing(); len(missing) > 0 {
		return "", &ConfigurationError{Missing: missing}
	}
	if g.Identity == "" {
		return "", ErrEmptyIdentity
	}
	now := i.now()
	expires := g.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(i.ttl)
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.keys.APIKey,
			Subject:   string(g.Identity),
			ID:        string(g.Identity),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Video: videoClaim{Room: string(g.Room), Capabilities: g.Capabilities},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(i.keys.APISecret))
	if err != nil {
		return "", fmt.Errorf("grant: signing token: %w", err)
	}
	return token, nil
}

// Verify checks signature, issuer and validity window and returns the
// grant carried by token.
func (i *Issuer) Verify(token string) (*domain.Grant, error) {
	if missing := i.keys.missing(); len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return []byte(i.keys.APISecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.keys.APIKey),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidGrant)
	}
	g := &domain.Grant{
		Identity:     domain.Identity(c.Subject),
		Room:         domain.RoomName(c.Video.Room),
		Capabilities: c.Video.Capabilities,
		ExpiresAt:    c.ExpiresAt.Time,
	}
	return g, nil
}

// VerifyJoin is Verify plus the checks a room relay needs before admitting
// a connection.
func (i *Issuer) VerifyJoin(token string) (*domain.Grant, error) {
	g, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	if !g.Capabilities.Join || g.Room == "" {
		return nil, ErrNoRoomJoin
	}
	return g, nil
}
