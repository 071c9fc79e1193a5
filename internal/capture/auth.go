package capture

import (
	"crypto/subtle"

	"github.com/capturelabs/capture-core/internal/config"
	"github.com/capturelabs/capture-core/internal/protocol"
)

// Authorizer checks client identity against the allowlist and per-client
// API keys. Key comparison is constant-time.
type Authorizer struct {
	allowlist map[string]struct{}
	keys      map[string]string
}

func NewAuthorizer(cfg config.AuthConfig) *Authorizer {
	a := &Authorizer{keys: cfg.APIKeys}
	if len(cfg.Allowlist) > 0 {
		a.allowlist = make(map[string]struct{}, len(cfg.Allowlist))
		for _, id := range cfg.Allowlist {
			a.allowlist[id] = struct{}{}
		}
	}
	return a
}

// Authorize validates the client identifier and its credential. An empty
// allowlist admits any client that presents a known key.
func (a *Authorizer) Authorize(clientID, apiKey string) *Error {
	if clientID == "" {
		return failure(protocol.ErrInvalidAuth, "missing client identifier", nil)
	}
	if a.allowlist != nil {
		if _, ok := a.allowlist[clientID]; !ok {
			return failure(protocol.ErrClientNotAllowed, "client is not allowed", nil)
		}
	}
	expected, ok := a.keys[clientID]
	if !ok || expected == "" {
		return failure(protocol.ErrInvalidAuth, "no credential registered for client", nil)
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
		return failure(protocol.ErrInvalidAuth, "invalid credential", nil)
	}
	return nil
}
