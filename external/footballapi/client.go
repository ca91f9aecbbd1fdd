package footballapi

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	crerr "github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/tahminlab/matchcast/internal/platform/logging"
	"github.com/tahminlab/matchcast/internal/platform/resilience"
)

const (
	defaultBaseURL = "https://v3.football.api-sports.io"
	keyHeader      = "x-apisports-key"
	maxBodyBytes   = 4 << 20
)

var errTransient = crerr.New("football api transient failure")

// ErrUnavailable marks calls rejected before reaching the provider, such as
// when the circuit breaker is open. Callers translate it into their own
// upstream-unavailable sentinel.
var ErrUnavailable = crerr.New("football api unavailable")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	RatePerSec     float64
	RateBurst      int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the football data provider. All requests share one rate
// limiter, one circuit breaker and one in-flight dedup group.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	maxRetries     int
	backoffInitial time.Duration
	limiter        *rate.Limiter
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 8
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	backoffInitial := cfg.BackoffInitial
	if backoffInitial <= 0 {
		backoffInitial = 200 * time.Millisecond
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		backoffInitial: backoffInitial,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// TeamInfo fetches a team's profile. found is false when the provider has no
// row for the id.
func (c *Client) TeamInfo(ctx context.Context, teamID int64) (TeamInfo, bool, error) {
	var env teamsEnvelope
	if err := c.doJSON(ctx, "/teams", map[string]string{"id": strconv.FormatInt(teamID, 10)}, &env); err != nil {
		return TeamInfo{}, false, fmt.Errorf("fetch team info team_id=%d: %w", teamID, err)
	}
	if len(env.Response) == 0 {
		return TeamInfo{}, false, nil
	}
	return env.Response[0], true, nil
}

// Standings fetches the league table for a season. The provider nests groups;
// the first group is the main table.
func (c *Client) Standings(ctx context.Context, leagueID int64, season int) ([]StandingRow, error) {
	query := map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"season": strconv.Itoa(season),
	}
	var env standingsEnvelope
	if err := c.doJSON(ctx, "/standings", query, &env); err != nil {
		return nil, fmt.Errorf("fetch standings league_id=%d season=%d: %w", leagueID, season, err)
	}
	if len(env.Response) == 0 || len(env.Response[0].League.Standings) == 0 {
		return nil, nil
	}
	return env.Response[0].League.Standings[0], nil
}

// TeamFixtures fetches a team's most recent finished fixtures, newest first.
func (c *Client) TeamFixtures(ctx context.Context, teamID int64, last int) ([]FixtureItem, error) {
	query := map[string]string{
		"team": strconv.FormatInt(teamID, 10),
		"last": strconv.Itoa(last),
	}
	var env fixturesEnvelope
	if err := c.doJSON(ctx, "/fixtures", query, &env); err != nil {
		return nil, fmt.Errorf("fetch fixtures team_id=%d: %w", teamID, err)
	}
	return env.Response, nil
}

// HeadToHead fetches past meetings between two teams, newest first.
func (c *Client) HeadToHead(ctx context.Context, homeID, awayID int64, last int) ([]FixtureItem, error) {
	query := map[string]string{
		"h2h":  fmt.Sprintf("%d-%d", homeID, awayID),
		"last": strconv.Itoa(last),
	}
	var env fixturesEnvelope
	if err := c.doJSON(ctx, "/fixtures/headtohead", query, &env); err != nil {
		return nil, fmt.Errorf("fetch head to head %d-%d: %w", homeID, awayID, err)
	}
	return env.Response, nil
}

// Injuries fetches players currently unavailable for a team.
func (c *Client) Injuries(ctx context.Context, teamID int64, season int) ([]InjuryItem, error) {
	query := map[string]string{
		"team":   strconv.FormatInt(teamID, 10),
		"season": strconv.Itoa(season),
	}
	var env injuriesEnvelope
	if err := c.doJSON(ctx, "/injuries", query, &env); err != nil {
		return nil, fmt.Errorf("fetch injuries team_id=%d: %w", teamID, err)
	}
	return env.Response, nil
}

// Transfers fetches a team's transfer activity.
func (c *Client) Transfers(ctx context.Context, teamID int64) ([]TransferItem, error) {
	var env transfersEnvelope
	if err := c.doJSON(ctx, "/transfers", map[string]string{"team": strconv.FormatInt(teamID, 10)}, &env); err != nil {
		return nil, fmt.Errorf("fetch transfers team_id=%d: %w", teamID, err)
	}
	return env.Response, nil
}

// LeagueFixtures fetches all fixtures of a league season.
func (c *Client) LeagueFixtures(ctx context.Context, leagueID int64, season int) ([]FixtureItem, error) {
	query := map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"season": strconv.Itoa(season),
	}
	var env fixturesEnvelope
	if err := c.doJSON(ctx, "/fixtures", query, &env); err != nil {
		return nil, fmt.Errorf("fetch league fixtures league_id=%d season=%d: %w", leagueID, season, err)
	}
	return env.Response, nil
}

// Odds fetches bookmaker prices for a fixture.
func (c *Client) Odds(ctx context.Context, fixtureID int64) ([]OddsItem, error) {
	var env oddsEnvelope
	if err := c.doJSON(ctx, "/odds", map[string]string{"fixture": strconv.FormatInt(fixtureID, 10)}, &env); err != nil {
		return nil, fmt.Errorf("fetch odds fixture_id=%d: %w", fixtureID, err)
	}
	return env.Response, nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.Warn("football api circuit breaker rejected request", "state", c.breaker.State())
			return fmt.Errorf("%w: circuit breaker is open", ErrUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}

	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}

	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var raw []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set(keyHeader, c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: send request: %v", errTransient, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%w: read response body: %v", errTransient, readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			raw = body
			return nil
		case isRetryableStatus(resp.StatusCode):
			return fmt.Errorf("%w: provider status=%d body=%s", errTransient, resp.StatusCode, abbreviateBody(body))
		default:
			return backoff.Permanent(fmt.Errorf("provider status=%d body=%s", resp.StatusCode, abbreviateBody(body)))
		}
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = c.backoffInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(c.maxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		c.logger.Warn("football api request failed", "url", fullURL, "error", err)
		return nil, err
	}

	return raw, nil
}

// 429 and 5xx are worth retrying; other 4xx responses are caller mistakes.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func isCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errTransient) || stderrors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether a call failed for a reason worth retrying
// later: provider outage, rate limiting, or timeout. Other errors are caller
// mistakes and repeat deterministically.
func IsTransient(err error) bool {
	return isCircuitFailure(err)
}

func abbreviateBody(raw []byte) string {
	const limit = 240
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
