package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codecompass/compass-go/api"
	"github.com/codecompass/compass-go/credentials"
	"github.com/codecompass/compass-go/credentials/repofakes"
	"github.com/stretchr/testify/require"
)

const (
	staleAccessToken = "stale-access"
	freshAccessToken = "fresh-access"
	refreshTokenStr  = "refresh-1"
)

// authServer simulates the REST collaborator: a protected resource that
// only accepts freshAccessToken, and a refresh endpoint that issues it.
type authServer struct {
	*httptest.Server

	refreshCalls  atomic.Int32
	refreshStatus int           // refresh endpoint response status
	refreshDelay  time.Duration // lets concurrent callers pile up behind the owner
	resourceCalls atomic.Int32
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()

	as := &authServer{refreshStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		as.refreshCalls.Add(1)
		time.Sleep(as.refreshDelay)

		var body struct {
			Refresh string `json:"refresh"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, refreshTokenStr, body.Refresh)

		if as.refreshStatus != http.StatusOK {
			w.WriteHeader(as.refreshStatus)
			_, _ = w.Write([]byte(`{"detail":"refresh token invalid"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access": freshAccessToken})
	})
	mux.HandleFunc("/api/protected/", func(w http.ResponseWriter, r *http.Request) {
		as.resourceCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+freshAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"token expired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	})

	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

func TestAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	repo := repofakes.NewFakeCredentialRepo()
	repo.Seed(credentials.Pair{Access: freshAccessToken, Refresh: refreshTokenStr})

	client := api.New(srv.URL, repo)
	require.NoError(t, client.Do(context.Background(), http.MethodGet, "/anything/", nil, nil))
	require.Equal(t, "Bearer "+freshAccessToken, gotAuth)
}

func TestSingleFlightRefresh(t *testing.T) {
	srv := newAuthServer(t)
	srv.refreshDelay = 50 * time.Millisecond

	repo := repofakes.NewFakeCredentialRepo()
	repo.Seed(credentials.Pair{Access: staleAccessToken, Refresh: refreshTokenStr})

	client := api.New(srv.URL+"/api", repo)

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i], "caller %d", i)
	}
	require.Equal(t, int32(1), srv.refreshCalls.Load(), "exactly one refresh call")

	pair, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, freshAccessToken, pair.Access)
	require.Equal(t, refreshTokenStr, pair.Refresh, "refresh token survives access rotation")
}

func TestNoRefreshTokenClearsSessionOnce(t *testing.T) {
	srv := newAuthServer(t)

	repo := repofakes.NewFakeCredentialRepo()
	repo.Seed(credentials.Pair{Access: staleAccessToken}) // no refresh token

	var expiredCalls atomic.Int32
	client := api.New(srv.URL+"/api", repo,
		api.WithSessionExpiredHook(func() { expiredCalls.Add(1) }))

	err := client.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
	require.True(t, api.IsUnauthorized(err), "fails with the original 401: %v", err)

	require.Equal(t, int32(0), srv.refreshCalls.Load(), "no refresh attempted")
	require.Equal(t, int32(1), expiredCalls.Load(), "session-expired hook fired exactly once")
	require.Equal(t, 1, repo.ClearCalls)
	_, loadErr := repo.Load()
	require.ErrorIs(t, loadErr, credentials.ErrNotFound)
}

func TestNoSecondRefreshAfterRetry(t *testing.T) {
	// The resource rejects even the fresh token, so the retried request
	// gets a second 401. That must surface as an error, not another
	// refresh cycle.
	var refreshCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/token/refresh/" {
			refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"access": freshAccessToken})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"still unauthorized"}`))
	}))
	defer srv.Close()

	repo := repofakes.NewFakeCredentialRepo()
	repo.Seed(credentials.Pair{Access: staleAccessToken, Refresh: refreshTokenStr})

	client := api.New(srv.URL+"/api", repo)

	err := client.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
	require.True(t, api.IsUnauthorized(err))
	require.Equal(t, int32(1), refreshCalls.Load(), "no infinite refresh loop")
}

func TestRefreshFailureRejectsAllQueuedCallers(t *testing.T) {
	srv := newAuthServer(t)
	srv.refreshStatus = http.StatusUnauthorized
	srv.refreshDelay = 50 * time.Millisecond

	repo := repofakes.NewFakeCredentialRepo()
	repo.Seed(credentials.Pair{Access: staleAccessToken, Refresh: refreshTokenStr})

	var expiredCalls atomic.Int32
	client := api.New(srv.URL+"/api", repo,
		api.WithSessionExpiredHook(func() { expiredCalls.Add(1) }))

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.True(t, api.IsUnauthorized(errs[i]), "caller %d gets the refresh error: %v", i, errs[i])
	}
	require.Equal(t, int32(1), srv.refreshCalls.Load())
	require.Equal(t, int32(1), expiredCalls.Load())
	_, loadErr := repo.Load()
	require.ErrorIs(t, loadErr, credentials.ErrNotFound)
}

func TestTransportErrorPropagatesUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	repo := repofakes.NewFakeCredentialRepo()
	client := api.New(srv.URL, repo)

	err := client.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
	require.Error(t, err)
	var apiErr *api.APIError
	require.NotErrorAs(t, err, &apiErr, "transport failures are not APIErrors")
}

func TestBusinessErrorsPropagateUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"email":["A user with this email already exists."]}`))
	}))
	defer srv.Close()

	repo := repofakes.NewFakeCredentialRepo()
	client := api.New(srv.URL, repo)

	err := client.Do(context.Background(), http.MethodPost, "/auth/register/", map[string]string{}, nil)
	require.True(t, api.IsStatus(err, http.StatusBadRequest))

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "A user with this email already exists.", apiErr.Detail)
}

func TestListEnvelopeShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/sessions/":
			_, _ = w.Write([]byte(`{"results":[{"sessionId":"s-1"},{"sessionId":"s-2"}]}`))
		case "/roadmaps/":
			_, _ = w.Write([]byte(`[{"id":1,"title":"Go Basics"}]`))
		}
	}))
	defer srv.Close()

	client := api.New(srv.URL, repofakes.NewFakeCredentialRepo())

	sessions, err := client.ListChatSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "s-1", sessions[0].SessionID)

	roadmaps, err := client.ListRoadmaps(context.Background())
	require.NoError(t, err)
	require.Len(t, roadmaps, 1)
	require.Equal(t, "Go Basics", roadmaps[0].Title)
}
