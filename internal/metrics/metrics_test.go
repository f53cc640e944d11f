package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// scrape renders the recorder's registry in the text exposition format.
func scrape(t *testing.T, m *Prometheus) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	return string(body)
}

func TestPrometheus(t *testing.T) {
	t.Run("counts provider requests by status bucket", func(t *testing.T) {
		m := NewPrometheus()

		m.ObserveProviderRequest("spotify", "GET", 200, 10*time.Millisecond)
		m.ObserveProviderRequest("spotify", "GET", 204, 10*time.Millisecond)
		m.ObserveProviderRequest("spotify", "GET", 429, 10*time.Millisecond)
		m.ObserveProviderRequest("youtube", "POST", 503, 10*time.Millisecond)

		out := scrape(t, m)
		for _, line := range []string{
			`musiclink_provider_requests_total{method="GET",provider="spotify",status="2xx"} 2`,
			`musiclink_provider_requests_total{method="GET",provider="spotify",status="429"} 1`,
			`musiclink_provider_requests_total{method="POST",provider="youtube",status="5xx"} 1`,
			`musiclink_provider_request_duration_seconds_count{provider="spotify"} 3`,
		} {
			if !strings.Contains(out, line) {
				t.Errorf("expected %q in exposition output", line)
			}
		}
	})

	t.Run("counts migration outcomes", func(t *testing.T) {
		m := NewPrometheus()

		m.IncMigrationTrack(TrackAdded)
		m.IncMigrationTrack(TrackAdded)
		m.IncMigrationTrack(TrackUnmatched)

		out := scrape(t, m)
		if !strings.Contains(out, `musiclink_migration_tracks_total{outcome="added"} 2`) {
			t.Error("expected 2 added tracks")
		}
		if !strings.Contains(out, `musiclink_migration_tracks_total{outcome="unmatched"} 1`) {
			t.Error("expected 1 unmatched track")
		}
	})

	t.Run("separate registries", func(t *testing.T) {
		a := NewPrometheus()
		b := NewPrometheus()

		a.IncLinkTransition("spotify", "token_exchanged")
		if strings.Contains(scrape(t, b), "musiclink_link_transitions_total{") {
			t.Error("recorders should not share state")
		}
	})

	t.Run("Handler", func(t *testing.T) {
		m := NewPrometheus()
		m.IncProviderRetry("spotify", "rate_limited")

		out := scrape(t, m)
		if !strings.Contains(out, `musiclink_provider_retries_total{provider="spotify",reason="rate_limited"} 1`) {
			t.Errorf("expected retry counter in exposition output, got:\n%s", out)
		}
		if !strings.Contains(out, "go_goroutines") {
			t.Error("expected go runtime collector output")
		}
	})
}

func TestStatusLabel(t *testing.T) {
	tc := []struct {
		code int
		want string
	}{
		{0, "error"},
		{200, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{429, "429"},
		{502, "5xx"},
	}

	for _, tt := range tc {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	r.ObserveProviderRequest("spotify", "GET", 200, time.Second)
	r.IncMigrationTrack(TrackAdded)
}
