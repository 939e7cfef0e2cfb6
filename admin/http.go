package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/stageflow/monitor"
	"github.com/jonwraymond/stageflow/observe"
	"github.com/jonwraymond/stageflow/resilience"
)

// Controls is the coordinator surface the admin API operates on. Every
// resilience.Coordinator instantiation satisfies it.
type Controls interface {
	Keys() []string
	Status(key string) (resilience.BreakerStatus, error)
	Reset(key string) error
	ResetAll()
	HealthSummary() resilience.Summary
}

// APIConfig configures the admin API.
type APIConfig struct {
	// Controls is the coordinator under administration. Required.
	Controls Controls

	// Recent supplies the execution records served by the records endpoint.
	// Optional; without it the endpoint reports records unavailable.
	Recent *monitor.Memory

	// Auth verifies bearer tokens on every request. Optional; without it
	// the surface is open and the embedding server brings its own auth.
	Auth *TokenVerifier

	// Logger receives audit entries for denied requests and resets.
	// Default: NopLogger.
	Logger observe.Logger
}

// API serves the operational endpoints of a coordinator.
type API struct {
	controls Controls
	recent   *monitor.Memory
	auth     *TokenVerifier
	logger   observe.Logger
}

// NewAPI creates the admin API.
func NewAPI(config APIConfig) (*API, error) {
	if config.Controls == nil {
		return nil, fmt.Errorf("admin: controls are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &API{
		controls: config.Controls,
		recent:   config.Recent,
		auth:     config.Auth,
		logger:   logger,
	}, nil
}

// Handler returns the admin surface as a single handler, with bearer
// verification applied when configured. Paths are relative; mount under a
// prefix with http.StripPrefix.
func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()
	api.register(mux)
	if api.auth == nil {
		return mux
	}
	return api.requireAuth(mux)
}

func (api *API) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /operations", api.handleListOperations)
	mux.HandleFunc("GET /operations/{key}", api.handleGetOperation)
	mux.HandleFunc("POST /operations/{key}/reset", api.handleResetOperation)
	mux.HandleFunc("POST /reset", api.handleResetAll)
	mux.HandleFunc("GET /health", api.handleHealth)
	mux.HandleFunc("GET /records", api.handleRecords)
}

// requireAuth rejects requests whose bearer token fails verification and
// stores the verified subject in the request context.
func (api *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := api.auth.VerifyRequest(r)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, ErrMissingToken) {
				code = "unauthorized"
			}
			api.logger.Warn(r.Context(), "admin request denied",
				observe.Field{Key: "method", Value: r.Method},
				observe.Field{Key: "path", Value: r.URL.Path},
				observe.Field{Key: "error", Value: err.Error()},
			)
			writeError(w, http.StatusUnauthorized, code)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), subject)))
	})
}

// operationStatus is the JSON shape of one breaker snapshot.
type operationStatus struct {
	Key         string `json:"key"`
	State       string `json:"state"`
	Failures    int    `json:"failures"`
	Successes   int    `json:"successes"`
	LastFailure string `json:"last_failure,omitempty"`
}

func statusBody(key string, st resilience.BreakerStatus) operationStatus {
	body := operationStatus{
		Key:       key,
		State:     st.State.String(),
		Failures:  st.Failures,
		Successes: st.Successes,
	}
	if !st.LastFailure.IsZero() {
		body.LastFailure = st.LastFailure.UTC().Format(time.RFC3339Nano)
	}
	return body
}

func (api *API) handleListOperations(w http.ResponseWriter, r *http.Request) {
	keys := api.controls.Keys()
	out := make([]operationStatus, 0, len(keys))
	for _, key := range keys {
		st, err := api.controls.Status(key)
		if err != nil {
			continue
		}
		out = append(out, statusBody(key, st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": out})
}

func (api *API) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key_required")
		return
	}

	st, err := api.controls.Status(key)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_operation")
		return
	}
	writeJSON(w, http.StatusOK, statusBody(key, st))
}

func (api *API) handleResetOperation(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key_required")
		return
	}

	if err := api.controls.Reset(key); err != nil {
		writeError(w, http.StatusNotFound, "unknown_operation")
		return
	}
	api.logger.Info(r.Context(), "breaker reset",
		observe.Field{Key: "op.key", Value: key},
		observe.Field{Key: "subject", Value: SubjectFromContext(r.Context())},
	)

	st, err := api.controls.Status(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, statusBody(key, st))
}

func (api *API) handleResetAll(w http.ResponseWriter, r *http.Request) {
	keys := api.controls.Keys()
	api.controls.ResetAll()
	api.logger.Info(r.Context(), "all breakers reset",
		observe.Field{Key: "count", Value: len(keys)},
		observe.Field{Key: "subject", Value: SubjectFromContext(r.Context())},
	)
	writeJSON(w, http.StatusOK, map[string]any{"reset": len(keys)})
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := api.controls.HealthSummary()
	states := make(map[string]string, len(summary.States))
	for key, state := range summary.States {
		states[key] = state.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": summary.Healthy,
		"states":  states,
	})
}

// recordView is the JSON shape of one execution record.
type recordView struct {
	Key        string         `json:"key"`
	DurationMS float64        `json:"duration_ms"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Time       time.Time      `json:"time"`
}

func (api *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	if api.recent == nil {
		writeError(w, http.StatusNotFound, "records_unavailable")
		return
	}

	recs := api.recent.Snapshot()
	if limit := parseIntQuery(r, "limit", 0); limit > 0 && limit < len(recs) {
		recs = recs[len(recs)-limit:]
	}

	out := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordView{
			Key:        rec.Key,
			DurationMS: float64(rec.Duration.Microseconds()) / 1000.0,
			Success:    rec.Success,
			Error:      rec.Error,
			Meta:       rec.Meta,
			Time:       rec.Time,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
