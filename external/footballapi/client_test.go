package footballapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tahminlab/matchcast/internal/platform/logging"
	"github.com/tahminlab/matchcast/internal/platform/resilience"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		RatePerSec:     1000,
		RateBurst:      1000,
		Logger:         logging.NewNop(),
		CircuitBreaker: resilience.CircuitBreakerConfig{Enabled: false},
	})
	return client, server
}

func TestClient_TeamInfo(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-apisports-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		if r.URL.Path != "/teams" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "645" {
			t.Errorf("unexpected id query: %s", r.URL.Query().Get("id"))
		}
		w.Write([]byte(`{"response":[{"team":{"id":645,"name":"Galatasaray","country":"Turkey","founded":1905},"venue":{"name":"Rams Park","city":"Istanbul","capacity":52280}}]}`))
	}))

	info, found, err := client.TeamInfo(context.Background(), 645)
	if err != nil {
		t.Fatalf("team info: %v", err)
	}
	if !found {
		t.Fatalf("expected team to be found")
	}
	if info.Team.Name != "Galatasaray" {
		t.Fatalf("unexpected team name: %q", info.Team.Name)
	}
	if info.Venue.Capacity != 52280 {
		t.Fatalf("unexpected venue capacity: %d", info.Venue.Capacity)
	}
}

func TestClient_TeamInfo_EmptyResponseMeansNoData(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[]}`))
	}))

	_, found, err := client.TeamInfo(context.Background(), 999999)
	if err != nil {
		t.Fatalf("team info: %v", err)
	}
	if found {
		t.Fatalf("expected no data for unknown team")
	}
}

func TestClient_RetriesOn500ThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"response":[{"fixture":{"id":1,"status":{"short":"FT"}},"goals":{"home":2,"away":0}}]}`))
	}))

	fixtures, err := client.TeamFixtures(context.Background(), 645, 10)
	if err != nil {
		t.Fatalf("team fixtures: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected one fixture, got=%d", len(fixtures))
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got=%d", got)
	}
	if !fixtures[0].Finished() {
		t.Fatalf("expected finished fixture")
	}
}

func TestClient_DoesNotRetryOn404(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	if _, err := client.Standings(context.Background(), 203, 2025); err == nil {
		t.Fatalf("expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got=%d", got)
	}
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		Timeout:        time.Second,
		MaxRetries:     0,
		BackoffInitial: time.Millisecond,
		RatePerSec:     1000,
		RateBurst:      1000,
		Logger:         logging.NewNop(),
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Injuries(ctx, 645, 2025); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	_, err := client.Injuries(ctx, 645, 2025)
	if err == nil {
		t.Fatalf("expected circuit-open rejection")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable sentinel, got: %v", err)
	}
}

func TestClient_Standings_FlattensFirstGroup(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[{"league":{"id":203,"season":2025,"standings":[[{"rank":1,"team":{"id":645,"name":"Galatasaray"},"points":30,"goalsDiff":18,"form":"WWWDW","all":{"played":12,"win":9,"draw":3,"lose":0,"goals":{"for":28,"against":10}}}]]}}]}`))
	}))

	rows, err := client.Standings(context.Background(), 203, 2025)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got=%d", len(rows))
	}
	if rows[0].Rank != 1 || rows[0].Team.ID != 645 || rows[0].All.Played != 12 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}
