package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tahminlab/matchcast/internal/platform/logging"
)

func NewRouter(
	handler *Handler,
	metricsRegistry *prometheus.Registry,
	logger *logging.Logger,
	corsAllowedOrigins []string,
	internalJobToken string,
) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler, metricsRegistry)
	registerPredictionRoutes(mux, handler)
	registerInternalJobRoutes(mux, handler, internalJobToken)

	return RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux)))
}

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metricsRegistry *prometheus.Registry) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if metricsRegistry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}
}

func registerPredictionRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/predictions", handler.CreatePrediction)
	mux.HandleFunc("GET /v1/predictions/{predictionID}", handler.GetPrediction)
	mux.HandleFunc("POST /v1/outcomes", handler.IngestOutcome)
	mux.HandleFunc("GET /v1/accuracy", handler.GetAccuracy)
	mux.HandleFunc("GET /v1/cache/stats", handler.GetCacheStats)
	mux.HandleFunc("GET /v1/models", handler.ListModels)
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/retrain",
		RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunRetrainJob)))
}
