package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// errorBody is the JSON shape of every error response. Compatibility and
// Result carry context for 422 and partial-migration responses.
type errorBody struct {
	Error         string                     `json:"error"`
	Code          string                     `json:"code"`
	Compatibility *types.CompatibilityResult `json:"compatibility,omitempty"`
	Result        *types.MigrationResult     `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeEngineError translates an engine error into a status, code, and body.
// Wrapper errors carrying a result are checked before the bare sentinels
// their cause chain may contain.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		incompatible *types.IncompatibleModelsError
		migration    *types.MigrationError
		dimension    *types.DimensionMismatchError
		store        *types.StoreError
	)

	switch {
	case errors.As(err, &incompatible):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:         incompatible.Error(),
			Code:          "incompatible_models",
			Compatibility: incompatible.Result,
		})
	case errors.As(err, &migration):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:  migration.Error(),
			Code:   "migration_failed",
			Result: migration.Result,
		})
	case errors.As(err, &dimension):
		writeError(w, http.StatusBadRequest, "dimension_mismatch", err.Error())
	case types.IsProviderErrorKind(err, types.ProviderErrModel):
		writeError(w, http.StatusBadRequest, "model_error", err.Error())
	case types.IsProviderErrorKind(err, types.ProviderErrRateLimit):
		writeError(w, http.StatusTooManyRequests, "rate_limit", err.Error())
	case types.IsProviderErrorKind(err, types.ProviderErrAuthentication):
		writeError(w, http.StatusBadGateway, "authentication_error", err.Error())
	case types.IsProviderErrorKind(err, types.ProviderErrConnection):
		writeError(w, http.StatusBadGateway, "connection_error", err.Error())
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, types.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.As(err, &store):
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Store     *types.StoreStats      `json:"store,omitempty"`
	Providers []types.ProviderStatus `json:"providers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Providers: s.engine.ProviderStatus(r.Context()),
	}
	if stats, err := s.engine.Stats(r.Context()); err == nil {
		resp.Store = stats
	} else {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.engine.CreateEmbedding(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreateResult{
		ID:        rec.ID,
		URI:       rec.URI,
		ModelName: rec.ModelName,
	})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.CreateBatch(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ListFilter{
		URIPattern: q.Get("uri"),
		ModelName:  q.Get("model_name"),
		TaskType:   q.Get("task_type"),
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("invalid page %q", v))
			return
		}
		filter.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("invalid limit %q", v))
			return
		}
		filter.Limit = n
	}

	result, err := s.engine.ListEmbeddings(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	rec, err := s.engine.GetEmbeddingByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req types.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.engine.UpdateEmbedding(r.Context(), id, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteEmbedding(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "invalid_input", "confirm=true is required to clear the store")
		return
	}

	deleted, err := s.engine.DeleteAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

type modelsResponse struct {
	Models []types.ModelDescriptor `json:"models"`
	Count  int                     `json:"count"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.engine.ListModels(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, Count: len(models)})
}

type compatibilityRequest struct {
	FromModel string `json:"from_model"`
	ToModel   string `json:"to_model"`
}

func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	var req compatibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FromModel == "" || req.ToModel == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "from_model and to_model are required")
		return
	}

	result, err := s.engine.ValidateCompatibility(r.Context(), req.FromModel, req.ToModel)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// migrateRequest uses pointer booleans so omitted options keep their
// defaults (continue_on_error defaults to true).
type migrateRequest struct {
	FromModel        string `json:"from_model"`
	ToModel          string `json:"to_model"`
	BatchSize        int    `json:"batch_size,omitempty"`
	ContinueOnError  *bool  `json:"continue_on_error,omitempty"`
	PreserveOriginal *bool  `json:"preserve_original,omitempty"`
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FromModel == "" || req.ToModel == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "from_model and to_model are required")
		return
	}

	opts := types.DefaultMigrationOptions()
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.ContinueOnError != nil {
		opts.ContinueOnError = *req.ContinueOnError
	}
	if req.PreserveOriginal != nil {
		opts.PreserveOriginal = *req.PreserveOriginal
	}

	result, err := s.engine.Migrate(r.Context(), req.FromModel, req.ToModel, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type providersResponse struct {
	Providers []types.ProviderStatus `json:"providers"`
	Active    string                 `json:"active"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Providers: s.engine.ProviderStatus(r.Context()),
		Active:    s.engine.Providers().ActiveName(),
	})
}
