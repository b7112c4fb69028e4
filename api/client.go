// Package api is the request gateway for the CodeCompass REST collaborator.
// Every outbound call carries the current access token as a bearer
// credential; a 401 triggers a single-flight refresh, after which the
// original request is replayed once with the new token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codecompass/compass-go/credentials"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const refreshPath = "/auth/token/refresh/"

// SessionExpiredHook is invoked when the session becomes unrecoverable:
// a 401 with no stored refresh token, or a failed refresh call. Persisted
// credentials are already cleared when it fires. The UI layer uses it to
// navigate to the login entry point.
type SessionExpiredHook func()

// Client wraps an http.Client with bearer-token attachment and the
// refresh-and-retry protocol. One Client exists per running process; it is
// the only writer of the refreshing flag and the waiter queue.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credentials.Repo
	logger     zerolog.Logger
	expired    SessionExpiredHook

	lock       sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	access string
	err    error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the gateway logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSessionExpiredHook registers the unrecoverable-session callback.
func WithSessionExpiredHook(hook SessionExpiredHook) Option {
	return func(c *Client) { c.expired = hook }
}

// New creates a gateway rooted at baseURL (including any path prefix, e.g.
// "https://host/api"). creds is read on every attempt so calls always see
// the latest token, never one captured before a suspension point.
func New(baseURL string, creds credentials.Repo, options ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// Do performs an authenticated JSON request. body is marshalled when
// non-nil; out is unmarshalled from a 2xx response when non-nil.
//
// Error taxonomy: transport failures propagate untouched, a 401 that
// survives one refresh-and-retry propagates as the refresh (or original)
// error, and every other non-2xx status surfaces as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.Do] marshal body")
		}
		payload = b
	}

	pair, _ := c.creds.Load()
	status, respBody, err := c.attempt(ctx, method, path, payload, pair.Access)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		access, refreshErr := c.refreshAccessToken(ctx, newAPIError(status, respBody))
		if refreshErr != nil {
			return refreshErr
		}
		// Replay once with the new token. A second 401 falls through to
		// the error below rather than triggering another refresh.
		status, respBody, err = c.attempt(ctx, method, path, payload, access)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return newAPIError(status, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrapf(err, "[Client.Do] decode %s %s response", method, path)
		}
	}
	return nil
}

// attempt performs one HTTP round trip. Transport errors come back
// unwrapped so callers can distinguish them from HTTP-level failures.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, access string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.attempt] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.attempt] read body")
	}
	return resp.StatusCode, respBody, nil
}

// refreshAccessToken runs the single-flight refresh protocol and returns
// the new access token. At most one refresh call is outstanding at any
// time: concurrent callers park on a waiter channel and share the owner's
// result. originalErr is what non-refreshable callers fail with.
func (c *Client) refreshAccessToken(ctx context.Context, originalErr error) (string, error) {
	c.lock.Lock()
	if c.refreshing {
		waiter := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, waiter)
		c.lock.Unlock()
		// The owner always settles and drains the queue, so this receive
		// cannot leak. Requests are uncancellable once queued.
		res := <-waiter
		return res.access, res.err
	}
	c.refreshing = true
	c.lock.Unlock()

	access, err := c.doRefresh(ctx, originalErr)

	c.lock.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.lock.Unlock()

	// Resolved in enqueue order.
	for _, waiter := range waiters {
		waiter <- refreshResult{access: access, err: err}
	}
	return access, err
}

// doRefresh is the owner's half of the protocol: load the refresh token,
// call the refresh endpoint with a bare (uninstrumented) request, persist
// the new access token. Any failure clears local state and fires the
// session-expired hook.
func (c *Client) doRefresh(ctx context.Context, originalErr error) (string, error) {
	pair, err := c.creds.Load()
	if err != nil || pair.Refresh == "" {
		c.logger.Warn().Msg("authorization failed with no refresh token, clearing session")
		c.expireSession()
		return "", originalErr
	}

	body, err := json.Marshal(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return "", errors.Wrap(err, "[Client.doRefresh] marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "[Client.doRefresh] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.expireSession()
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.expireSession()
		return "", errors.Wrap(err, "[Client.doRefresh] read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("token refresh rejected, clearing session")
		c.expireSession()
		return "", newAPIError(resp.StatusCode, respBody)
	}

	var refreshed struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(respBody, &refreshed); err != nil {
		c.expireSession()
		return "", errors.Wrap(err, "[Client.doRefresh] decode")
	}

	if err := c.creds.Save(credentials.Pair{Access: refreshed.Access}); err != nil {
		c.logger.Err(err).Msg("failed to persist refreshed access token")
	}
	c.logger.Debug().Msg("access token refreshed")
	return refreshed.Access, nil
}

func (c *Client) expireSession() {
	if err := c.creds.Clear(); err != nil {
		c.logger.Err(err).Msg("failed to clear stored credentials")
	}
	if c.expired != nil {
		c.expired()
	}
}
