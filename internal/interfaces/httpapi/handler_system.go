package httpapi

import (
	"net/http"
	"regexp"

	sonic "github.com/bytedance/sonic"

	"github.com/tahminlab/matchcast/internal/infrastructure/registry"
	"github.com/tahminlab/matchcast/internal/models"
	"github.com/tahminlab/matchcast/internal/usecase"
)

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("day")

	var (
		stats any
		err   error
	)
	if day == "" {
		stats, err = h.cache.TodayStats(r.Context())
	} else if dayPattern.MatchString(day) {
		stats, err = h.cache.StatsForDay(r.Context(), day)
	} else {
		writeError(w, usecase.ErrInvalidInput)
		return
	}
	if err != nil {
		h.logger.Error("cache stats failed", "day", day, "error", err)
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, stats)
}

type modelFamilyDTO struct {
	Family        string               `json:"family"`
	ActiveVersion string               `json:"active_version,omitempty"`
	Versions      []registry.ModelMeta `json:"versions"`
}

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	active := h.models.ActiveVersions()

	items := make([]modelFamilyDTO, 0, 2)
	for _, family := range []string{models.FamilyXGB, models.FamilyLGBM} {
		versions, err := h.models.Versions(family)
		if err != nil {
			h.logger.Error("list model versions failed", "family", family, "error", err)
			writeError(w, err)
			return
		}
		items = append(items, modelFamilyDTO{
			Family:        family,
			ActiveVersion: active[family],
			Versions:      versions,
		})
	}

	writeSuccess(w, http.StatusOK, items)
}

type retrainRequest struct {
	Trigger string `json:"trigger" validate:"omitempty,oneof=scheduled volume degradation manual"`
}

// RunRetrainJob kicks one retraining cycle. Without an explicit trigger the
// cycle only runs when one of the automatic triggers fires.
func (h *Handler) RunRetrainJob(w http.ResponseWriter, r *http.Request) {
	var req retrainRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, usecase.ErrInvalidInput)
			return
		}
		if err := h.validator.Struct(&req); err != nil {
			writeError(w, usecase.ErrInvalidInput)
			return
		}
	}

	trigger := req.Trigger
	if trigger == "" {
		fired, ok := h.retrain.ShouldRetrain(r.Context())
		if !ok {
			writeSuccess(w, http.StatusOK, map[string]any{"triggered": false})
			return
		}
		trigger = fired
	}

	report, err := h.retrain.Run(r.Context(), trigger)
	if err != nil {
		h.logger.Warn("retrain run failed", "trigger", trigger, "error", err)
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, report)
}
