package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/tahminlab/matchcast/internal/domain/prediction"
	"github.com/tahminlab/matchcast/internal/infrastructure/cachestore"
	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/platform/logging"
	"github.com/tahminlab/matchcast/internal/usecase"
)

// RecordReader serves stored predictions for the read path.
type RecordReader interface {
	Get(ctx context.Context, id string) (prediction.Record, bool, error)
}

type Handler struct {
	predictions *usecase.PredictionService
	outcomes    *usecase.OutcomeService
	retrain     *usecase.RetrainService
	records     RecordReader
	cache       *cachestore.Store
	models      *registry.Registry

	accuracyWindow time.Duration
	logger         *logging.Logger
	validator      *validator.Validate
}

func NewHandler(
	predictions *usecase.PredictionService,
	outcomes *usecase.OutcomeService,
	retrain *usecase.RetrainService,
	records RecordReader,
	cache *cachestore.Store,
	models *registry.Registry,
	accuracyWindow time.Duration,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if accuracyWindow <= 0 {
		accuracyWindow = 30 * 24 * time.Hour
	}

	return &Handler{
		predictions:    predictions,
		outcomes:       outcomes,
		retrain:        retrain,
		records:        records,
		cache:          cache,
		models:         models,
		accuracyWindow: accuracyWindow,
		logger:         logger,
		validator:      validator.New(),
	}
}

type predictRequest struct {
	HomeTeamID int64     `json:"home_team_id" validate:"required,gt=0"`
	AwayTeamID int64     `json:"away_team_id" validate:"required,gt=0"`
	LeagueID   int64     `json:"league_id" validate:"required,gt=0"`
	Season     int       `json:"season" validate:"required,gte=2000"`
	Method     string    `json:"method" validate:"omitempty,oneof=voting averaging weighted"`
	AsOf       time.Time `json:"as_of"`
}

func (h *Handler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	output, err := h.predictions.Predict(r.Context(), usecase.PredictInput{
		HomeTeamID: req.HomeTeamID,
		AwayTeamID: req.AwayTeamID,
		LeagueID:   req.LeagueID,
		Season:     req.Season,
		Method:     req.Method,
		AsOf:       req.AsOf,
	})
	if err != nil {
		h.logger.Warn("prediction failed",
			"home_team_id", req.HomeTeamID, "away_team_id", req.AwayTeamID,
			"league_id", req.LeagueID, "error", err)
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, output)
}

func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("predictionID")

	record, found, err := h.records.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("prediction lookup failed", "prediction_id", id, "error", err)
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, fmt.Errorf("%w: prediction %s", usecase.ErrNotFound, id))
		return
	}

	writeSuccess(w, http.StatusOK, record)
}

type outcomeRequest struct {
	HomeTeamID int64     `json:"home_team_id" validate:"required,gt=0"`
	AwayTeamID int64     `json:"away_team_id" validate:"required,gt=0"`
	LeagueID   int64     `json:"league_id" validate:"required,gt=0"`
	Season     int       `json:"season" validate:"required,gte=2000"`
	GoalsHome  int       `json:"goals_home" validate:"gte=0"`
	GoalsAway  int       `json:"goals_away" validate:"gte=0"`
	ObservedAt time.Time `json:"observed_at"`
}

func (h *Handler) IngestOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.outcomes.Ingest(r.Context(), usecase.OutcomeInput{
		HomeTeamID: req.HomeTeamID,
		AwayTeamID: req.AwayTeamID,
		LeagueID:   req.LeagueID,
		Season:     req.Season,
		GoalsHome:  req.GoalsHome,
		GoalsAway:  req.GoalsAway,
		ObservedAt: req.ObservedAt,
	})
	if err != nil {
		h.logger.Warn("outcome ingest failed",
			"home_team_id", req.HomeTeamID, "away_team_id", req.AwayTeamID, "error", err)
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, outcome)
}

func (h *Handler) GetAccuracy(w http.ResponseWriter, r *http.Request) {
	since, err := h.sinceFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.outcomes.Accuracy(r.Context(), since)
	if err != nil {
		h.logger.Error("accuracy report failed", "error", err)
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, summary)
}

// sinceFromQuery resolves the report window: an explicit "since" timestamp
// wins, then a "window" duration, then the configured default.
func (h *Handler) sinceFromQuery(r *http.Request) (time.Time, error) {
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid since timestamp %q", usecase.ErrInvalidInput, raw)
		}
		return since, nil
	}

	window := h.accuracyWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return time.Time{}, fmt.Errorf("%w: invalid window duration %q", usecase.ErrInvalidInput, raw)
		}
		window = parsed
	}
	return time.Now().UTC().Add(-window), nil
}

func (h *Handler) decodeBody(r *http.Request, target any) error {
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: malformed request body", usecase.ErrInvalidInput)
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}
