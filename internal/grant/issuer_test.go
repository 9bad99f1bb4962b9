package grant

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/listenparty/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testIssuer(opts ...Option) *Issuer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewIssuer(Keys{APIKey: "devkey", APISecret: "devsecret-devsecret-devsecret"}, opts...)
}

// videoOf decodes the JWT payload without verification so the wire claim
// names are checked directly.
func videoOf(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts, want 3", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	video, ok := body["video"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no video claim: %s", payload)
	}
	return video
}

func TestMint_HostCanPublish(t *testing.T) {
	token, err := testIssuer().Mint("alice", "room42", domain.RoleHost)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	video := videoOf(t, token)
	for _, key := range []string{"roomJoin", "canPublish", "canSubscribe", "canPublishData", "canUpdateOwnMetadata"} {
		if video[key] != true {
			t.Errorf("%s = %v, want true", key, video[key])
		}
	}
	if video["room"] != "room42" {
		t.Errorf("room = %v, want room42", video["room"])
	}
}

func TestMint_ListenerCannotPublish(t *testing.T) {
	token, err := testIssuer().Mint("bob", "room42", domain.RoleListener)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	video := videoOf(t, token)
	if video["canPublish"] != false {
		t.Errorf("canPublish = %v, want false", video["canPublish"])
	}
	for _, key := range []string{"canSubscribe", "canPublishData", "canUpdateOwnMetadata"} {
		if video[key] != true {
			t.Errorf("%s = %v, want true", key, video[key])
		}
	}
}

func TestMint_MissingKeysIsConfigurationError(t *testing.T) {
	for _, keys := range []Keys{{}, {APIKey: "k"}, {APISecret: "s"}} {
		token, err := NewIssuer(keys).Mint("alice", "room42", domain.RoleHost)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("keys %+v: err = %v, want ConfigurationError", keys, err)
		}
		if token != "" {
			t.Fatalf("keys %+v: token issued despite configuration error", keys)
		}
		if err.Error() != NotConfiguredMessage {
			t.Fatalf("message = %q", err.Error())
		}
	}
}

func TestMint_RejectsEmptyIdentityAndRoom(t *testing.T) {
	issuer := testIssuer()
	if _, err := issuer.Mint("", "room42", domain.RoleHost); !errors.Is(err, ErrEmptyIdentity) {
		t.Fatalf("empty identity: err = %v", err)
	}
	if _, err := issuer.Mint("alice", "", domain.RoleHost); !errors.Is(err, ErrEmptyRoom) {
		t.Fatalf("empty room: err = %v", err)
	}
}

func TestMint_DeterministicForFixedClock(t *testing.T) {
	a, err := testIssuer().Mint("alice", "room42", domain.RoleHost)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	b, err := testIssuer().Mint("alice", "room42", domain.RoleHost)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if a != b {
		t.Fatal("expected identical tokens for identical inputs and clock")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	issuer := testIssuer(WithTTL(time.Hour))
	token, err := issuer.Mint("alice", "room42", domain.RoleHost)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	g, err := issuer.VerifyJoin(token)
	if err != nil {
		t.Fatalf("VerifyJoin: %v", err)
	}
	if g.Identity != "alice" || g.Room != "room42" {
		t.Fatalf("unexpected grant: %+v", g)
	}
	if g.Capabilities != domain.CapabilitiesFor(domain.RoleHost) {
		t.Fatalf("capabilities = %+v", g.Capabilities)
	}
	if !g.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("ExpiresAt = %v", g.ExpiresAt)
	}
}

func TestVerify_RejectsForeignSecret(t *testing.T) {
	token, err := NewIssuer(Keys{APIKey: "devkey", APISecret: "other-secret"}).Mint("mallory", "room42", domain.RoleHost)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := testIssuer().Verify(token); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("err = %v, want ErrInvalidGrant", err)
	}
}

func TestVerify_RejectsExpired(t *testing.T) {
	token, err := testIssuer(WithTTL(time.Minute)).Mint("alice", "room42", domain.RoleListener)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	later := NewIssuer(Keys{APIKey: "devkey", APISecret: "devsecret-devsecret-devsecret"},
		WithClock(func() time.Time { return fixedNow.Add(2 * time.Minute) }))
	if _, err := later.Verify(token); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("err = %v, want ErrInvalidGrant", err)
	}
}

func TestVerifyJoin_RequiresRoomJoin(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.MintGrant(domain.Grant{Identity: "observer", Room: "room42"})
	if err != nil {
		t.Fatalf("MintGrant: %v", err)
	}
	if _, err := issuer.VerifyJoin(token); !errors.Is(err, ErrNoRoomJoin) {
		t.Fatalf("err = %v, want ErrNoRoomJoin", err)
	}
}
