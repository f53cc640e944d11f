package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/repositories"
	"github.com/desertthunder/musiclink/internal/shared"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// sleepRecorder replaces real sleeping between attempts and records the requested waits.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// newProviderServer serves api under /v1/ and token at /token.
func newProviderServer(t *testing.T, api, token http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	if api != nil {
		mux.Handle("/v1/", api)
	}
	if token != nil {
		mux.Handle("/token", token)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(srv *httptest.Server, store repositories.CredentialStore, sleeper *sleepRecorder) Options {
	return Options{
		Config: shared.ProviderConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "http://127.0.0.1:3000/callback",
			APIBaseURL:   srv.URL + "/v1",
			AuthURL:      srv.URL + "/authorize",
			TokenURL:     srv.URL + "/token",
			Scopes:       []string{"playlist-read-private"},
		},
		Store: store,
		Retry: RetryPolicy{
			MaxAttempts:       3,
			BaseBackoff:       time.Second,
			DefaultRetryAfter: time.Second,
			Sleep:             sleeper.Sleep,
		},
		ExpiryMargin: time.Minute,
		HTTPClient:   srv.Client(),
		Now:          func() time.Time { return testNow },
	}
}

// linkedStore returns a store holding a valid access token for user-1 on provider.
func linkedStore(t *testing.T, provider models.Provider) *repositories.MemoryCredentialStore {
	t.Helper()

	store := repositories.NewMemoryCredentialStore()
	record := models.TokenRecord{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: testNow.Add(time.Hour)}
	if err := store.PutTokens(context.Background(), "user-1", provider, record); err != nil {
		t.Fatalf("failed to seed tokens: %v", err)
	}
	return store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewTokenRecord(t *testing.T) {
	tc := []struct {
		name   string
		grant  Grant
		margin time.Duration
		want   time.Time
	}{
		{
			name:   "subtracts margin",
			grant:  Grant{AccessToken: "a", ExpiresIn: time.Hour},
			margin: time.Minute,
			want:   testNow.Add(59 * time.Minute),
		},
		{
			name:   "margin capped at half the lifetime",
			grant:  Grant{AccessToken: "a", ExpiresIn: 60 * time.Second},
			margin: 5 * time.Minute,
			want:   testNow.Add(30 * time.Second),
		},
		{
			name:   "missing lifetime defaults to an hour",
			grant:  Grant{AccessToken: "a"},
			margin: time.Minute,
			want:   testNow.Add(59 * time.Minute),
		},
		{
			name:   "negative margin ignored",
			grant:  Grant{AccessToken: "a", ExpiresIn: time.Hour},
			margin: -time.Minute,
			want:   testNow.Add(time.Hour),
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewTokenRecord(&tt.grant, testNow, tt.margin)
			if !rec.ExpiresAt.Equal(tt.want) {
				t.Errorf("expected expires_at %v, got %v", tt.want, rec.ExpiresAt)
			}
			if rec.Expired(testNow) {
				t.Error("a fresh record must not be expired")
			}
		})
	}
}

func TestNew(t *testing.T) {
	srv := newProviderServer(t, nil, nil)
	store := repositories.NewMemoryCredentialStore()

	t.Run("selects implementation by provider", func(t *testing.T) {
		spotify, err := New(models.Spotify, testOptions(srv, store, &sleepRecorder{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := spotify.(*SpotifyService); !ok {
			t.Errorf("expected *SpotifyService, got %T", spotify)
		}

		youtube, err := New(models.YouTube, testOptions(srv, store, &sleepRecorder{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if youtube.Provider() != models.YouTube {
			t.Errorf("expected youtube provider, got %s", youtube.Provider())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New("tidal", testOptions(srv, store, &sleepRecorder{}))
		if !errors.Is(err, shared.ErrUnknownProvider) {
			t.Errorf("expected ErrUnknownProvider, got %v", err)
		}
	})

	t.Run("missing client secret", func(t *testing.T) {
		opts := testOptions(srv, store, &sleepRecorder{})
		opts.Config.ClientSecret = ""

		_, err := New(models.Spotify, opts)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("missing store", func(t *testing.T) {
		opts := testOptions(srv, store, &sleepRecorder{})
		opts.Store = nil

		if _, err := New(models.Spotify, opts); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("NewFromConfig skips unconfigured providers", func(t *testing.T) {
		cfg := shared.DefaultConfig()
		cfg.Credentials.YouTube.ClientSecret = ""

		gateways, err := NewFromConfig(cfg, store, nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := gateways[models.Spotify]; !ok {
			t.Error("expected a spotify gateway")
		}
		if _, ok := gateways[models.YouTube]; ok {
			t.Error("youtube without a client secret should be skipped")
		}
	})
}

func TestAuthCodeURL(t *testing.T) {
	srv := newProviderServer(t, nil, nil)
	gw, err := NewSpotifyService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}

	raw := gw.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid auth url %q: %v", raw, err)
	}

	if !strings.HasPrefix(raw, srv.URL+"/authorize?") {
		t.Errorf("expected auth url under %s/authorize, got %s", srv.URL, raw)
	}

	q := u.Query()
	expected := map[string]string{
		"state":         "state-123",
		"client_id":     "client-id",
		"response_type": "code",
		"access_type":   "offline",
		"redirect_uri":  "http://127.0.0.1:3000/callback",
		"scope":         "playlist-read-private",
	}
	for k, v := range expected {
		if got := q.Get(k); got != v {
			t.Errorf("expected %s=%q, got %q", k, v, got)
		}
	}
}

func TestExchange(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-id" || pass != "client-secret" {
				t.Errorf("expected basic client auth, got %q/%q (ok=%v)", user, pass, ok)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("failed to parse form: %v", err)
			}
			if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != "code-1" {
				t.Errorf("unexpected form %v", r.PostForm)
			}
			if r.PostForm.Get("client_secret") != "" {
				t.Error("client secret must not be sent in the body")
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"scope":         "playlist-read-private",
			})
		})

		gw, err := NewSpotifyService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))
		if err != nil {
			t.Fatalf("failed to create gateway: %v", err)
		}

		grant, err := gw.Exchange(context.Background(), "code-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if grant.AccessToken != "access-1" || grant.RefreshToken != "refresh-1" {
			t.Errorf("unexpected grant %+v", grant)
		}
		if grant.Scope != "playlist-read-private" {
			t.Errorf("expected scope, got %q", grant.Scope)
		}
		if grant.ExpiresIn < 59*time.Minute || grant.ExpiresIn > time.Hour {
			t.Errorf("expected expires_in near 1h, got %s", grant.ExpiresIn)
		}
	})

	t.Run("provider rejects code", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		})

		gw, err := NewYouTubeService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))
		if err != nil {
			t.Fatalf("failed to create gateway: %v", err)
		}

		_, err = gw.Exchange(context.Background(), "bad-code")
		if !errors.Is(err, shared.ErrExchangeFailed) {
			t.Fatalf("expected ErrExchangeFailed, got %v", err)
		}
		if shared.StatusOf(err) != http.StatusBadRequest {
			t.Errorf("expected provider status 400, got %d", shared.StatusOf(err))
		}

		var exErr *shared.ExchangeError
		if !errors.As(err, &exErr) || exErr.Reason != "invalid_grant" {
			t.Errorf("expected invalid_grant reason, got %v", err)
		}
	})
}

func TestEnsureAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("not linked", func(t *testing.T) {
		srv := newProviderServer(t, nil, nil)
		gw, _ := NewSpotifyService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))

		_, err := gw.EnsureAccessToken(ctx, "nobody")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("valid token used without refresh", func(t *testing.T) {
		var calls atomic.Int32
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusInternalServerError, nil)
		})
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), &sleepRecorder{}))

		tok, err := gw.EnsureAccessToken(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Value != "access-1" {
			t.Errorf("expected stored token, got %s", tok.Value)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no token endpoint calls, got %d", calls.Load())
		}
	})

	t.Run("expired without refresh token", func(t *testing.T) {
		var calls atomic.Int32
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "stale", ExpiresAt: testNow.Add(-time.Minute)})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		_, err := gw.EnsureAccessToken(ctx, "user-1")
		if !errors.Is(err, shared.ErrReauthRequired) {
			t.Errorf("expected ErrReauthRequired, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("refresh must not be attempted, got %d token calls", calls.Load())
		}
	})

	t.Run("token expiring exactly now is refreshed", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "stale", RefreshToken: "r", ExpiresAt: testNow})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		tok, err := gw.EnsureAccessToken(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Value != "fresh" {
			t.Errorf("expected refreshed token, got %s", tok.Value)
		}
	})

	t.Run("refreshes expired token", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			if _, _, ok := r.BasicAuth(); !ok {
				t.Error("expected basic client auth on refresh")
			}
			r.ParseForm()
			if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "refresh-1" {
				t.Errorf("unexpected refresh form %v", r.PostForm)
			}
			// providers may omit refresh_token on refresh
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-2", "token_type": "Bearer", "expires_in": 3600})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.YouTube, models.TokenRecord{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    testNow.Add(-time.Second),
			Scope:        "youtube",
		})
		gw, _ := NewYouTubeService(testOptions(srv, store, &sleepRecorder{}))

		tok, err := gw.EnsureAccessToken(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.Value != "access-2" {
			t.Errorf("expected access-2, got %s", tok.Value)
		}
		if !tok.ExpiresAt.After(testNow) {
			t.Errorf("returned token must expire in the future, got %v", tok.ExpiresAt)
		}

		rec, _ := store.GetTokens(ctx, "user-1", models.YouTube)
		if rec.AccessToken != "access-2" {
			t.Errorf("refreshed token not written back, got %s", rec.AccessToken)
		}
		if rec.RefreshToken != "refresh-1" {
			t.Errorf("existing refresh token should be kept, got %q", rec.RefreshToken)
		}
		if rec.Scope != "youtube" {
			t.Errorf("existing scope should be kept, got %q", rec.Scope)
		}
	})

	t.Run("stores rotated refresh token", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "access-2",
				"refresh_token": "refresh-2",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "a", RefreshToken: "refresh-1", ExpiresAt: testNow.Add(-time.Hour)})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		if _, err := gw.EnsureAccessToken(ctx, "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec, _ := store.GetTokens(ctx, "user-1", models.Spotify)
		if rec.RefreshToken != "refresh-2" {
			t.Errorf("expected rotated refresh token, got %q", rec.RefreshToken)
		}
	})

	t.Run("refresh rejected", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "a", RefreshToken: "revoked", ExpiresAt: testNow.Add(-time.Hour)})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		_, err := gw.EnsureAccessToken(ctx, "user-1")
		if !errors.Is(err, shared.ErrReauthRequired) {
			t.Errorf("expected ErrReauthRequired, got %v", err)
		}
	})

	t.Run("refresh server error is transient", func(t *testing.T) {
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "unavailable"})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Hour)})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		_, err := gw.EnsureAccessToken(ctx, "user-1")
		if !errors.Is(err, shared.ErrProviderTransient) {
			t.Errorf("expected ErrProviderTransient, got %v", err)
		}
		if errors.Is(err, shared.ErrReauthRequired) {
			t.Error("an unavailable token endpoint must not force reauthorization")
		}
	})

	t.Run("concurrent callers refresh once", func(t *testing.T) {
		var calls atomic.Int32
		srv := newProviderServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-2", "token_type": "Bearer", "expires_in": 3600})
		})

		store := repositories.NewMemoryCredentialStore()
		store.PutTokens(ctx, "user-1", models.Spotify, models.TokenRecord{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Hour)})
		gw, _ := NewSpotifyService(testOptions(srv, store, &sleepRecorder{}))

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := gw.EnsureAccessToken(ctx, "user-1"); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if calls.Load() != 1 {
			t.Errorf("expected a single refresh, got %d", calls.Load())
		}
	})
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	// sequence answers successive API calls with the given statuses, then 200 with an empty profile
	sequence := func(statuses []int, headers []http.Header) (http.HandlerFunc, *atomic.Int32) {
		var calls atomic.Int32
		return func(w http.ResponseWriter, r *http.Request) {
			n := int(calls.Add(1)) - 1
			if r.Header.Get("Authorization") != "Bearer access-1" {
				t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			if n < len(statuses) {
				if n < len(headers) {
					for k, v := range headers[n] {
						w.Header()[k] = v
					}
				}
				writeJSON(w, statuses[n], map[string]any{"error": map[string]any{"status": statuses[n]}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": "me", "display_name": "Me"})
		}, &calls
	}

	t.Run("429 waits for Retry-After", func(t *testing.T) {
		api, calls := sequence([]int{429}, []http.Header{{"Retry-After": {"2"}}})
		srv := newProviderServer(t, api, nil)
		sleeper := &sleepRecorder{}
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), sleeper))

		profile, err := gw.Profile(ctx, "user-1")
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if profile.ID != "me" {
			t.Errorf("unexpected profile %+v", profile)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}

		waits := sleeper.Waits()
		if len(waits) != 1 || waits[0] != 2*time.Second {
			t.Errorf("expected a single 2s wait, got %v", waits)
		}
	})

	t.Run("429 without Retry-After waits the default", func(t *testing.T) {
		api, _ := sequence([]int{429}, nil)
		srv := newProviderServer(t, api, nil)
		sleeper := &sleepRecorder{}
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), sleeper))

		if _, err := gw.Profile(ctx, "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if waits := sleeper.Waits(); len(waits) != 1 || waits[0] != time.Second {
			t.Errorf("expected a single 1s wait, got %v", waits)
		}
	})

	t.Run("5xx backs off exponentially", func(t *testing.T) {
		api, calls := sequence([]int{500, 503}, nil)
		srv := newProviderServer(t, api, nil)
		sleeper := &sleepRecorder{}
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), sleeper))

		if _, err := gw.Profile(ctx, "user-1"); err != nil {
			t.Fatalf("expected third attempt to succeed, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}

		waits := sleeper.Waits()
		if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
			t.Errorf("expected waits [1s 2s], got %v", waits)
		}
	})

	t.Run("exhausted retries surface a transient error", func(t *testing.T) {
		api, calls := sequence([]int{503, 503, 503, 503}, nil)
		srv := newProviderServer(t, api, nil)
		sleeper := &sleepRecorder{}
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), sleeper))

		_, err := gw.Profile(ctx, "user-1")
		if !errors.Is(err, shared.ErrProviderTransient) {
			t.Fatalf("expected ErrProviderTransient, got %v", err)
		}

		var pe *shared.ProviderError
		if !errors.As(err, &pe) || pe.Attempts != 3 || pe.Status != 503 {
			t.Errorf("expected 3 attempts ending in 503, got %+v", pe)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
		if waits := sleeper.Waits(); len(waits) != 2 {
			t.Errorf("expected 2 waits between 3 attempts, got %v", waits)
		}
	})

	t.Run("other statuses fail immediately", func(t *testing.T) {
		for _, status := range []int{400, 401, 403, 404} {
			api, calls := sequence([]int{status}, nil)
			srv := newProviderServer(t, api, nil)
			sleeper := &sleepRecorder{}
			gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), sleeper))

			_, err := gw.Profile(ctx, "user-1")
			if !errors.Is(err, shared.ErrProviderRejected) {
				t.Errorf("status %d: expected ErrProviderRejected, got %v", status, err)
			}
			if shared.StatusOf(err) != status {
				t.Errorf("status %d: expected status on error, got %d", status, shared.StatusOf(err))
			}
			if calls.Load() != 1 {
				t.Errorf("status %d: expected a single call, got %d", status, calls.Load())
			}
			if len(sleeper.Waits()) != 0 {
				t.Errorf("status %d: expected no waits", status)
			}
		}
	})

	t.Run("max attempts configurable", func(t *testing.T) {
		api, calls := sequence([]int{500, 500, 500, 500, 500}, nil)
		srv := newProviderServer(t, api, nil)
		opts := testOptions(srv, linkedStore(t, models.Spotify), &sleepRecorder{})
		opts.Retry.MaxAttempts = 5
		gw, _ := NewSpotifyService(opts)

		if _, err := gw.Profile(ctx, "user-1"); !errors.Is(err, shared.ErrProviderTransient) {
			t.Fatalf("expected ErrProviderTransient, got %v", err)
		}
		if calls.Load() != 5 {
			t.Errorf("expected 5 calls, got %d", calls.Load())
		}
	})

	t.Run("caller cancellation stops retries", func(t *testing.T) {
		api, _ := sequence(nil, nil)
		srv := newProviderServer(t, api, nil)
		gw, _ := NewSpotifyService(testOptions(srv, linkedStore(t, models.Spotify), &sleepRecorder{}))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := gw.Profile(cancelled, "user-1")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("policy timeout is transient", func(t *testing.T) {
		api, _ := sequence([]int{503, 503, 503}, nil)
		srv := newProviderServer(t, api, nil)
		opts := testOptions(srv, linkedStore(t, models.Spotify), &sleepRecorder{})
		opts.Retry.Sleep = sleepWithContext
		opts.Retry.BaseBackoff = time.Hour
		opts.Retry.Timeout = 50 * time.Millisecond
		gw, _ := NewSpotifyService(opts)

		_, err := gw.Profile(ctx, "user-1")
		if !errors.Is(err, shared.ErrProviderTransient) {
			t.Errorf("expected ErrProviderTransient, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline in error chain, got %v", err)
		}
	})

	t.Run("unauthenticated user makes no call", func(t *testing.T) {
		api, calls := sequence(nil, nil)
		srv := newProviderServer(t, api, nil)
		gw, _ := NewSpotifyService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))

		if _, err := gw.Profile(ctx, "user-1"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no API calls, got %d", calls.Load())
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	tc := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{name: "seconds", header: "2", want: 2 * time.Second, ok: true},
		{name: "zero", header: "0", want: 0, ok: true},
		{name: "http date", header: testNow.Add(5 * time.Second).Format(http.TimeFormat), want: 5 * time.Second, ok: true},
		{name: "past date", header: testNow.Add(-time.Minute).Format(http.TimeFormat), want: 0, ok: true},
		{name: "absent", header: "", ok: false},
		{name: "garbage", header: "soon", ok: false},
		{name: "negative", header: "-3", ok: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}

			got, ok := parseRetryAfter(h, testNow)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, %v; want %v, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	srv := newProviderServer(t, nil, nil)
	gw, _ := NewSpotifyService(testOptions(srv, repositories.NewMemoryCredentialStore(), &sleepRecorder{}))

	t.Run("relative path", func(t *testing.T) {
		got, err := gw.resolve("me/playlists", url.Values{"limit": {"50"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != srv.URL+"/v1/me/playlists?limit=50" {
			t.Errorf("unexpected url %s", got)
		}
	})

	t.Run("cursor under base url", func(t *testing.T) {
		next := srv.URL + "/v1/me/playlists?offset=50"
		got, err := gw.resolve(next, nil)
		if err != nil || got != next {
			t.Errorf("expected %s, got %s (%v)", next, got, err)
		}
	})

	t.Run("foreign host rejected", func(t *testing.T) {
		if _, err := gw.resolve("https://example.com/v1/me", nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
