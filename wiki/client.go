package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nineff/Wikimate/metrics"
	"github.com/nineff/Wikimate/tracing"
)

// Response headers making up the server's load-shedding protocol. A
// lagged replica answers with the lag header and, usually, a retry hint.
const (
	lagHeader        = "X-Database-Lag"
	retryAfterHeader = "Retry-After"
)

// Client talks to a single wiki API endpoint. It owns the session state:
// cookies, the cached write token, and the authenticated flag. A Client
// is safe for concurrent reads, but entities built on it serialize their
// own mutations.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
	tokens     *tokenCache

	// sleep is swapped out in tests so lag retries run without waiting
	sleep func(ctx context.Context, d time.Duration) error

	// mu guards loggedIn and errs
	mu       sync.RWMutex
	loggedIn bool
	errs     ErrorLog
}

// NewClient creates a wiki API client for the configured endpoint
func NewClient(config *Config, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		logger: logger,
		tokens: newTokenCache(),
		sleep:  sleepContext,
	}
}

// Close releases idle connections held by the transport
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Authenticated reports whether a login has succeeded this session
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

// Errors returns the session-level error record: business failures from
// login and logout, keyed by context
func (c *Client) Errors() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errs.snapshot()
}

func (c *Client) recordErr(key, msg string) {
	c.mu.Lock()
	c.errs.record(key, msg)
	c.mu.Unlock()
}

func (c *Client) resetErrs() {
	c.mu.Lock()
	c.errs.reset()
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get issues a read call with query-encoded parameters
func (c *Client) Get(ctx context.Context, params url.Values) (Envelope, error) {
	return c.call(ctx, http.MethodGet, params, nil)
}

// Post issues a write call with url-encoded form parameters
func (c *Client) Post(ctx context.Context, params url.Values) (Envelope, error) {
	return c.call(ctx, http.MethodPost, params, func() (io.Reader, string, error) {
		return strings.NewReader(params.Encode()), "application/x-www-form-urlencoded", nil
	})
}

// PostMultipart issues a write call carrying one binary field alongside
// the usual text fields, framed as a multipart body with a generated
// boundary
func (c *Client) PostMultipart(ctx context.Context, params url.Values, fileField, filename string, file []byte) (Envelope, error) {
	return c.call(ctx, http.MethodPost, params, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for key := range params {
			if err := w.WriteField(key, params.Get(key)); err != nil {
				return nil, "", err
			}
		}
		part, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
}

// call runs the lag/retry state machine for one logical API call. Every
// call carries format=json and the configured maxlag. A lag signal from
// the server puts the call to sleep (for the server's retry hint, or the
// maxlag duration when the hint is absent) and resends the identical
// request, decrementing the finite retry budget; UnlimitedRetries waits
// out lag forever. Anything that is not lag and not valid JSON is a
// malformed request and fails immediately. Business-level failures inside
// a well-formed envelope are the caller's to interpret.
func (c *Client) call(ctx context.Context, method string, params url.Values, makeBody func() (io.Reader, string, error)) (Envelope, error) {
	params.Set("format", "json")
	params.Set("maxlag", strconv.Itoa(c.config.MaxLag))
	action := params.Get("action")

	ctx, span := tracing.StartSpan(ctx, "wiki.api."+action)
	defer span.End()
	tracing.AddAPIAttributes(span, action, params.Get("title"))

	start := time.Now()
	env, err := c.callLoop(ctx, method, action, params, makeBody)
	metrics.RecordAPICall(action, time.Since(start).Seconds(), err == nil, commCode(err))
	tracing.RecordError(span, err)
	return env, err
}

func (c *Client) callLoop(ctx context.Context, method, action string, params url.Values, makeBody func() (io.Reader, string, error)) (Envelope, error) {
	retries := c.config.MaxLagRetries

	for {
		if err := ctx.Err(); err != nil {
			return nil, &CommError{Code: CommCodeCancelled, Action: action, Reason: "call cancelled", Err: err}
		}

		req, err := c.buildRequest(ctx, method, params, makeBody)
		if err != nil {
			return nil, &CommError{Code: CommCodeTransport, Action: action, Reason: "failed to build request", Err: err}
		}

		if c.config.Debug {
			c.logger.Debug("API request", "method", method, "action", action)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &CommError{Code: CommCodeTransport, Action: action, Reason: "request failed", Err: err}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, &CommError{Code: CommCodeTransport, Action: action, Reason: "failed to read response", Err: err}
		}

		if lag := resp.Header.Get(lagHeader); lag != "" {
			wait := time.Duration(c.config.MaxLag) * time.Second
			if hint := resp.Header.Get(retryAfterHeader); hint != "" {
				if seconds, parseErr := strconv.Atoi(hint); parseErr == nil {
					wait = time.Duration(seconds) * time.Second
				}
			}

			if retries == 0 {
				return nil, &CommError{
					Code:   CommCodeLagExhausted,
					Action: action,
					Reason: "server lag persisted through the configured retry budget",
				}
			}
			if retries > 0 {
				retries--
			}

			metrics.LagWaitsTotal.Inc()
			c.logger.Warn("Server lagged, backing off",
				"action", action,
				"lag", lag,
				"wait", wait,
				"retries_left", retries)

			if err := c.sleep(ctx, wait); err != nil {
				return nil, &CommError{Code: CommCodeCancelled, Action: action, Reason: "cancelled during lag wait", Err: err}
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, &CommError{
				Code:   CommCodeBadResponse,
				Action: action,
				Reason: "response is not valid JSON (HTTP " + strconv.Itoa(resp.StatusCode) + ")",
				Err:    err,
			}
		}

		return env, nil
	}
}

// maxResponseBytes bounds how much of a response body gets buffered
const maxResponseBytes = 50 * 1024 * 1024

func (c *Client) buildRequest(ctx context.Context, method string, params url.Values, makeBody func() (io.Reader, string, error)) (*http.Request, error) {
	var (
		endpoint    = c.config.APIURL
		body        io.Reader
		contentType string
	)

	if makeBody == nil {
		endpoint += "?" + params.Encode()
	} else {
		var err error
		body, contentType, err = makeBody()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

func commCode(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*CommError); ok {
		return string(ce.Code)
	}
	return string(CommCodeTransport)
}

// Login authenticates the session with the configured bot credentials.
// A refused login (wrong password, throttled, ...) is recorded in the
// session error record and returns false without an error; only a
// communication failure returns one.
func (c *Client) Login(ctx context.Context) (bool, error) {
	c.resetErrs()

	if !c.config.HasCredentials() {
		c.recordErr("login", "no credentials configured; set WIKIMATE_USERNAME and WIKIMATE_PASSWORD")
		return false, nil
	}

	token, err := c.Token(ctx, TokenLogin)
	if err != nil {
		return false, err
	}

	return c.loginWithToken(ctx, token, true)
}

func (c *Client) loginWithToken(ctx context.Context, token string, allowRetry bool) (bool, error) {
	params := url.Values{}
	params.Set("action", "login")
	params.Set("lgname", c.config.Username)
	params.Set("lgpassword", c.config.Password)
	params.Set("lgtoken", token)

	env, err := c.Post(ctx, params)
	if err != nil {
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		c.recordErr("login", code+": "+info)
		metrics.AuthFailures.WithLabelValues(code).Inc()
		return false, nil
	}

	login := getMap(env["login"])
	result := getString(login["result"])
	switch result {
	case "Success":
		c.mu.Lock()
		c.loggedIn = true
		c.errs.reset()
		c.mu.Unlock()
		c.logger.Info("Logged in", "username", c.config.Username)
		return true, nil

	case "NeedToken":
		// Older servers hand back the token to use in a second round
		if allowRetry {
			if fresh := getString(login["token"]); fresh != "" {
				return c.loginWithToken(ctx, fresh, false)
			}
		}
		c.recordErr("login", "login handshake did not converge")
		return false, nil

	default:
		msg := "login failed: " + result
		if reason := getString(login["reason"]); reason != "" {
			msg += ": " + reason
		}
		c.recordErr("login", msg)
		metrics.AuthFailures.WithLabelValues(result).Inc()
		return false, nil
	}
}

// EnsureLogin logs in if credentials are configured and the session is
// not yet authenticated. Without credentials it is a no-op; the write
// will then fail server-side with a recorded permission error.
func (c *Client) EnsureLogin(ctx context.Context) error {
	if c.Authenticated() || !c.config.HasCredentials() {
		return nil
	}
	_, err := c.Login(ctx)
	return err
}

// Logout ends the session. The cached write token is discarded whether or
// not the server accepts the call, so the next guarded write fetches a
// fresh one.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	c.resetErrs()
	defer func() {
		c.tokens.invalidate()
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		c.resetCookies()
	}()

	token, err := c.Token(ctx, TokenCSRF)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("action", "logout")
	params.Set("token", token)

	env, err := c.Post(ctx, params)
	if err != nil {
		return false, err
	}

	if code, info, ok := env.apiError(); ok {
		c.recordErr("logout", code+": "+info)
		return false, nil
	}

	c.logger.Info("Logged out")
	return true, nil
}

// resetCookies drops the session cookies so a later login starts clean
func (c *Client) resetCookies() {
	jar, _ := cookiejar.New(nil)
	c.httpClient.Jar = jar
}
