package auth

import (
	"context"
	"fmt"
	"strings"
)

// Identity names the requesting user. It partitions the engine handle cache,
// so two users never share a remote connection handle.
type Identity struct {
	UserID string
}

const AnonymousUser = "anonymous"

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator resolves API keys from a "key:user,key:user" spec.
type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:user", entry)
		}
		key := strings.TrimSpace(parts[0])
		user := strings.TrimSpace(parts[1])
		if key == "" || user == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/user", entry)
		}
		validator.keys[key] = Identity{UserID: user}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// CallerID extracts the caller identity for cache partitioning. Order:
// authenticated identity, then the X-User-ID header captured by the caller
// middleware, then the anonymous fallback.
func CallerID(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok {
		if strings.TrimSpace(identity.UserID) != "" {
			return identity.UserID
		}
	}
	return AnonymousUser
}
