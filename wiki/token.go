package wiki

import (
	"context"
	"net/url"
	"sync"

	"github.com/nineff/Wikimate/internal/infra"
	"github.com/nineff/Wikimate/metrics"
)

// TokenKind selects which anti-forgery token to request. Exactly two
// kinds exist: the write token guarding every mutating action, and the
// login token consumed by the authentication handshake.
type TokenKind string

const (
	// TokenCSRF is the write token. It is fetched once per session and
	// reused for every edit, delete, upload, and revert until logout.
	TokenCSRF TokenKind = "csrf"

	// TokenLogin is the login handshake token. Every login attempt needs
	// a fresh one, so it is never cached.
	TokenLogin TokenKind = "login"
)

// tokenCache holds the single cached write token for the session.
// Concurrent fetches of the same kind are coalesced so a burst of writes
// costs one token round trip, not one each.
type tokenCache struct {
	mu     sync.RWMutex
	csrf   string
	flight *infra.Deduplicator[string]
}

func newTokenCache() *tokenCache {
	return &tokenCache{flight: infra.NewDeduplicator[string]()}
}

func (t *tokenCache) cached() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.csrf, t.csrf != ""
}

func (t *tokenCache) store(token string) {
	t.mu.Lock()
	t.csrf = token
	t.mu.Unlock()
}

// invalidate clears the cached write token. Called on logout and when the
// server rejects a token as expired.
func (t *tokenCache) invalidate() {
	t.mu.Lock()
	t.csrf = ""
	t.mu.Unlock()
}

// Token returns an anti-forgery token of the given kind. The write token
// is cached for the lifetime of the session; the login token is fetched
// fresh on every call. Unrecognized kinds fail immediately with a
// TokenKindError and no network traffic.
func (c *Client) Token(ctx context.Context, kind TokenKind) (string, error) {
	switch kind {
	case TokenCSRF, TokenLogin:
	default:
		return "", &TokenKindError{Kind: kind}
	}

	if kind == TokenCSRF {
		if token, ok := c.tokens.cached(); ok {
			metrics.RecordTokenFetch(string(kind), true)
			return token, nil
		}

		token, shared, err := c.tokens.flight.Do(ctx, string(kind), func() (string, error) {
			return c.fetchToken(ctx, kind)
		})
		if err != nil {
			return "", err
		}
		if !shared {
			c.tokens.store(token)
		}
		metrics.RecordTokenFetch(string(kind), shared)
		return token, nil
	}

	token, err := c.fetchToken(ctx, kind)
	if err != nil {
		return "", err
	}
	metrics.RecordTokenFetch(string(kind), false)
	return token, nil
}

// InvalidateToken discards the cached write token so the next guarded
// call fetches a fresh one
func (c *Client) InvalidateToken() {
	c.tokens.invalidate()
}

func (c *Client) fetchToken(ctx context.Context, kind TokenKind) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", string(kind))

	env, err := c.Get(ctx, params)
	if err != nil {
		return "", err
	}

	if code, info, ok := env.apiError(); ok {
		return "", &CommError{
			Code:   TokenCodeMissing,
			Action: "query",
			Reason: "token request rejected: " + code + ": " + info,
		}
	}

	tokens := getMap(getMap(env["query"])["tokens"])
	token := getString(tokens[string(kind)+"token"])
	if token == "" {
		return "", &CommError{
			Code:   TokenCodeMissing,
			Action: "query",
			Reason: "no " + string(kind) + " token in response",
		}
	}

	c.logger.Debug("Fetched token", "kind", string(kind))
	return token, nil
}
