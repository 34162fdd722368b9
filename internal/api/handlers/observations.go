// Package handlers contains the HTTP handler implementations for the
// Observatory API: observation CRUD, bulk operations, and login.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"observatory/internal/core"
	"observatory/internal/observations"
	"observatory/internal/types"
)

// ObservationRepo defines the data access contract for observation
// operations. Satisfied by both db.ObservationRepository and memstore.Store.
type ObservationRepo interface {
	Create(ctx context.Context, o *types.Observation) error
	CreateBatch(ctx context.Context, batch []*types.Observation) error
	GetByID(ctx context.Context, id int64) (*types.Observation, error)
	List(ctx context.Context, q types.ObservationQuery) ([]*types.Observation, error)
	Update(ctx context.Context, o *types.Observation) error
	ReplaceBatch(ctx context.Context, batch []*types.Observation) error
	Delete(ctx context.Context, id int64) error
}

// --- Response Models ---

// BulkError is the per-record error detail inside a bulk response.
type BulkError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BulkResult reports the outcome of one record in a bulk submission,
// addressed by its position in the submitted array.
type BulkResult struct {
	Index       int                `json:"index"`
	Status      string             `json:"status"` // "created", "updated", or "error"
	Observation *types.Observation `json:"observation,omitempty"`
	Error       *BulkError         `json:"error,omitempty"`
}

// BulkResponse summarizes a bulk operation. Succeeded and Failed count
// records; Results preserves submission order.
type BulkResponse struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []BulkResult `json:"results"`
}

// --- Handler ---

// ObservationHandler serves the observation CRUD and bulk endpoints.
type ObservationHandler struct {
	repo   ObservationRepo
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewObservationHandler creates an ObservationHandler with the provided
// dependencies. A nil clock selects the real clock.
func NewObservationHandler(repo ObservationRepo, logger *slog.Logger, clock clockwork.Clock) *ObservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ObservationHandler{
		repo:   repo,
		logger: logger,
		clock:  clock,
	}
}

// RegisterRoutes mounts observation routes on the provided chi.Router.
// Reads are open; every mutating route passes through requireAuth.
func (h *ObservationHandler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/observations", func(r chi.Router) {
		r.Get("/", h.List)
		r.With(requireAuth).Post("/", h.Create)

		r.Route("/bulk", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", h.BulkCreate)
			r.Patch("/", h.BulkUpdate)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Put("/", h.Replace)
				r.Patch("/", h.Update)
				r.Delete("/", h.Delete)
			})
		})
	})
}

// --- Handler Methods ---

// Create handles POST /v1/observations.
//
// The body may be a single observation object or an array of them; an array
// is treated as a bulk submission with the same semantics as the bulk
// endpoint.
func (h *ObservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := core.DecodeJSON(w, r, &raw); err != nil {
		core.Error(w, r, err)
		return
	}

	if isJSONArray(raw) {
		h.bulkCreateFromRaw(w, r, raw)
		return
	}

	payload, err := decodeObject(raw)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	obs, err := observations.Normalize(payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.Create(r.Context(), obs); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "observation created",
		"id", obs.ID,
		"satellite_id", obs.SatelliteID,
	)
	core.JSON(w, r, http.StatusCreated, obs)
}

// Get handles GET /v1/observations/{id}.
func (h *ObservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	obs, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, obs)
}

// List handles GET /v1/observations. Query parameters narrow the result:
// bounding box, date range, id, and free-form payload equality filters.
func (h *ObservationHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := observations.ParseQuery(r.URL.Query())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	results, err := h.repo.List(r.Context(), q)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if results == nil {
		results = []*types.Observation{}
	}
	core.JSON(w, r, http.StatusOK, results)
}

// Replace handles PUT /v1/observations/{id}: a full replacement with the
// same validation as create. Records from closed quarters are locked.
func (h *ObservationHandler) Replace(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var payload map[string]any
	if err := core.DecodeJSON(w, r, &payload); err != nil {
		core.Error(w, r, err)
		return
	}

	obs, err := observations.Normalize(payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	existing, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.checkMutable(existing); err != nil {
		core.Error(w, r, err)
		return
	}

	obs.ID = existing.ID
	obs.CreatedAt = existing.CreatedAt
	if err := h.repo.Update(r.Context(), obs); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "observation replaced", "id", obs.ID)
	core.JSON(w, r, http.StatusOK, obs)
}

// Update handles PATCH /v1/observations/{id}: a partial merge where only
// the supplied fields are validated and overwritten.
func (h *ObservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var payload map[string]any
	if err := core.DecodeJSON(w, r, &payload); err != nil {
		core.Error(w, r, err)
		return
	}

	patch, err := observations.NormalizePatch(payload)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	existing, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.checkMutable(existing); err != nil {
		core.Error(w, r, err)
		return
	}

	patch.Apply(existing)
	if err := h.repo.Update(r.Context(), existing); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "observation updated", "id", existing.ID)
	core.JSON(w, r, http.StatusOK, existing)
}

// Delete handles DELETE /v1/observations/{id}. Records from closed quarters
// are locked against deletion too.
func (h *ObservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	existing, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.checkMutable(existing); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "observation deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// BulkCreate handles POST /v1/observations/bulk. The body is an array of
// observation objects; each is validated independently and valid records are
// created even when siblings fail.
func (h *ObservationHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := core.DecodeJSON(w, r, &raw); err != nil {
		core.Error(w, r, err)
		return
	}
	if !isJSONArray(raw) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"request body must be a JSON array of observations",
			nil,
		))
		return
	}
	h.bulkCreateFromRaw(w, r, raw)
}

// bulkCreateFromRaw implements the best-effort bulk create shared by the
// bulk endpoint and array submissions to the single-create endpoint.
func (h *ObservationHandler) bulkCreateFromRaw(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"request body must be a JSON array of observations",
			err,
		))
		return
	}
	if len(items) == 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"bulk submission must contain at least one observation",
			nil,
		))
		return
	}

	results := make([]BulkResult, len(items))
	var valid []*types.Observation
	var validIdx []int

	for i, item := range items {
		payload, err := decodeObject(item)
		if err != nil {
			results[i] = errorResult(i, err)
			continue
		}
		obs, err := observations.Normalize(payload)
		if err != nil {
			results[i] = errorResult(i, err)
			continue
		}
		valid = append(valid, obs)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if err := h.repo.CreateBatch(r.Context(), valid); err != nil {
			core.Error(w, r, err)
			return
		}
		for j, obs := range valid {
			results[validIdx[j]] = BulkResult{
				Index:       validIdx[j],
				Status:      "created",
				Observation: obs,
			}
		}
	}

	resp := summarize(results)
	h.logger.InfoContext(r.Context(), "bulk create completed",
		"submitted", len(items),
		"succeeded", resp.Succeeded,
		"failed", resp.Failed,
	)
	core.JSON(w, r, bulkStatus(resp, http.StatusCreated), resp)
}

// BulkUpdate handles PATCH /v1/observations/bulk. The body is an array of
// patch objects, each carrying the target "id" plus the fields to change.
// Every patch is validated independently and the merged replacements for
// the valid subset are written in one batch transaction, mirroring
// bulkCreateFromRaw.
func (h *ObservationHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if err := core.DecodeJSON(w, r, &items); err != nil {
		core.Error(w, r, err)
		return
	}
	if len(items) == 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"bulk submission must contain at least one update",
			nil,
		))
		return
	}

	results := make([]BulkResult, len(items))
	var valid []*types.Observation
	var validIdx []int

	for i, item := range items {
		obs, err := h.prepareBulkUpdate(r.Context(), item)
		if err != nil {
			results[i] = errorResult(i, err)
			continue
		}
		valid = append(valid, obs)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if err := h.repo.ReplaceBatch(r.Context(), valid); err != nil {
			core.Error(w, r, err)
			return
		}
		for j, obs := range valid {
			results[validIdx[j]] = BulkResult{
				Index:       validIdx[j],
				Status:      "updated",
				Observation: obs,
			}
		}
	}

	resp := summarize(results)
	h.logger.InfoContext(r.Context(), "bulk update completed",
		"submitted", len(items),
		"succeeded", resp.Succeeded,
		"failed", resp.Failed,
	)
	core.JSON(w, r, bulkStatus(resp, http.StatusOK), resp)
}

// prepareBulkUpdate validates one patch from a bulk update and returns the
// fully merged replacement without writing it.
func (h *ObservationHandler) prepareBulkUpdate(ctx context.Context, item json.RawMessage) (*types.Observation, error) {
	payload, err := decodeObject(item)
	if err != nil {
		return nil, err
	}

	id, ok := extractID(payload)
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidID,
			"update must carry a numeric id",
			nil,
		)
	}
	delete(payload, "id")

	patch, err := observations.NormalizePatch(payload)
	if err != nil {
		return nil, err
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := h.checkMutable(existing); err != nil {
		return nil, err
	}

	patch.Apply(existing)
	return existing, nil
}

// checkMutable rejects mutation of records created before the start of the
// current calendar quarter.
func (h *ObservationHandler) checkMutable(o *types.Observation) error {
	if types.IsImmutable(o.CreatedAt, h.clock.Now()) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeForbiddenImmutable,
			"observation belongs to a closed quarter and can no longer be modified",
			nil,
			map[string]any{"created_at": o.CreatedAt},
		)
	}
	return nil
}

// --- Helpers ---

// parseID extracts and validates the {id} URL parameter.
func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidID,
			"observation id must be an integer",
			err,
		)
	}
	return id, nil
}

// isJSONArray reports whether the raw message's first token opens an array.
func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// decodeObject unmarshals a raw message that must be a JSON object.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidPayload,
			"observation must be a JSON object",
			err,
		)
	}
	return payload, nil
}

// extractID pulls a numeric id out of a decoded patch object. JSON numbers
// decode as float64; only integral values are accepted.
func extractID(payload map[string]any) (int64, bool) {
	raw, ok := payload["id"]
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case float64:
		id := int64(n)
		if float64(id) != n {
			return 0, false
		}
		return id, true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	default:
		return 0, false
	}
}

// errorResult converts an error into a per-record bulk result.
func errorResult(index int, err error) BulkResult {
	be := &BulkError{
		Code:    string(types.ErrCodeInternalUnexpected),
		Message: "an unexpected error occurred",
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		be.Code = string(appErr.Code)
		be.Message = appErr.Message
		be.Details = appErr.Details
	}
	return BulkResult{Index: index, Status: "error", Error: be}
}

// summarize tallies succeeded and failed records.
func summarize(results []BulkResult) BulkResponse {
	resp := BulkResponse{Results: results}
	for _, res := range results {
		if res.Status == "error" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	return resp
}

// bulkStatus picks the response status: the success code when every record
// succeeded, 207 on partial success, 400 when everything failed.
func bulkStatus(resp BulkResponse, successStatus int) int {
	switch {
	case resp.Failed == 0:
		return successStatus
	case resp.Succeeded == 0:
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}
