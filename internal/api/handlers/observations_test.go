package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"observatory/internal/memstore"
	"observatory/internal/types"
)

// testNow is mid Q2 2025; records created before 2025-04-01 are locked.
var testNow = time.Date(2025, 5, 15, 12, 0, 0, 0, time.UTC)

// passAuth stands in for the auth gate on mutating routes.
func passAuth(next http.Handler) http.Handler { return next }

func newTestEnv(t *testing.T) (*memstore.Store, *clockwork.FakeClock, chi.Router) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	store := memstore.New(clock)
	handler := NewObservationHandler(store, slog.Default(), clock)

	r := chi.NewRouter()
	handler.RegisterRoutes(r, passAuth)
	return store, clock, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func validObservation() map[string]any {
	return map[string]any{
		"timestamp":    "2025-05-10T08:00:00Z",
		"timezone":     "UTC",
		"latitude":     45.5,
		"longitude":    -122.6,
		"satellite_id": "sat-42",
	}
}

// seedLocked inserts a record created in a closed quarter.
func seedLocked(store *memstore.Store, id int64) *types.Observation {
	o := &types.Observation{
		ID:          id,
		Timestamp:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Timezone:    "UTC",
		Latitude:    40.7,
		Longitude:   -74.0,
		SatelliteID: "sat-legacy",
		CreatedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	store.Seed(o)
	return o
}

// --- Create ---

func TestObservations_Create_Success(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations", validObservation())

	require.Equal(t, http.StatusCreated, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, 1.0, body["id"])
	assert.Equal(t, "sat-42", body["satellite_id"])
	assert.Equal(t, "2025-05-10T08:00:00Z", body["timestamp"])
	assert.NotEmpty(t, body["created_at"])
	assert.NotEmpty(t, body["updated_at"])
	// The opaque payload is never echoed back.
	assert.NotContains(t, body, "payload")
}

func TestObservations_Create_NumericStringCoordinates(t *testing.T) {
	store, _, router := newTestEnv(t)

	payload := validObservation()
	payload["latitude"] = "45.5"
	rr := doJSON(t, router, http.MethodPost, "/observations", payload)
	require.Equal(t, http.StatusCreated, rr.Code)

	stored, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 45.5, stored.Latitude)
}

func TestObservations_Create_ValidationAggregated(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations", map[string]any{
		"timestamp": "garbage",
		"latitude":  123.0,
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "validation_failed", errObj["code"])

	details := errObj["details"].(map[string]any)
	fieldErrs := details["errors"].([]any)
	// timestamp bad, latitude out of range, plus three missing fields.
	assert.Len(t, fieldErrs, 5)
}

func TestObservations_Create_MalformedJSON(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations", `{"broken`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "validation_invalid_payload", body["error"].(map[string]any)["code"])
}

func TestObservations_Create_ArrayBodyActsAsBulk(t *testing.T) {
	_, _, router := newTestEnv(t)

	good := validObservation()
	bad := map[string]any{"latitude": 999.0}
	rr := doJSON(t, router, http.MethodPost, "/observations", []any{good, bad})

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "created", resp.Results[0].Status)
	assert.Equal(t, "error", resp.Results[1].Status)
	assert.Equal(t, "validation_failed", resp.Results[1].Error.Code)
}

// --- Get ---

func TestObservations_Get_Success(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	rr := doJSON(t, router, http.MethodGet, "/observations/1", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, decodeBody(t, rr)["id"])
}

func TestObservations_Get_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodGet, "/observations/99", nil)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found_observation", decodeBody(t, rr)["error"].(map[string]any)["code"])
}

func TestObservations_Get_InvalidID(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodGet, "/observations/abc", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_invalid_id", decodeBody(t, rr)["error"].(map[string]any)["code"])
}

// --- List ---

func createAt(t *testing.T, router chi.Router, ts string, lat, lon float64, sat string) {
	t.Helper()
	payload := map[string]any{
		"timestamp":    ts,
		"timezone":     "UTC",
		"latitude":     lat,
		"longitude":    lon,
		"satellite_id": sat,
	}
	rr := doJSON(t, router, http.MethodPost, "/observations", payload)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func listIDs(t *testing.T, rr *httptest.ResponseRecorder) []float64 {
	t.Helper()
	var items []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&items))
	ids := make([]float64, len(items))
	for i, item := range items {
		ids[i] = item["id"].(float64)
	}
	return ids
}

func TestObservations_List_All(t *testing.T) {
	_, _, router := newTestEnv(t)
	createAt(t, router, "2025-05-01T00:00:00Z", 10, 10, "a")
	createAt(t, router, "2025-05-02T00:00:00Z", 20, 20, "b")

	rr := doJSON(t, router, http.MethodGet, "/observations", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []float64{1, 2}, listIDs(t, rr))
}

func TestObservations_List_EmptyIsArray(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodGet, "/observations", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rr.Body.Bytes())))
}

func TestObservations_List_BoundingBox(t *testing.T) {
	_, _, router := newTestEnv(t)
	createAt(t, router, "2025-05-01T00:00:00Z", 10, 10, "in")
	createAt(t, router, "2025-05-01T00:00:00Z", 50, 10, "out")

	rr := doJSON(t, router, http.MethodGet, "/observations?min_lat=0&max_lat=30", nil)

	assert.Equal(t, []float64{1}, listIDs(t, rr))
}

func TestObservations_List_DateRange(t *testing.T) {
	_, _, router := newTestEnv(t)
	createAt(t, router, "2025-05-01T23:00:00Z", 10, 10, "a")
	createAt(t, router, "2025-05-03T00:00:00Z", 10, 10, "b")

	rr := doJSON(t, router, http.MethodGet, "/observations?start_date=2025-05-01&end_date=2025-05-02", nil)

	assert.Equal(t, []float64{1}, listIDs(t, rr))
}

func TestObservations_List_FreeFormFilter(t *testing.T) {
	_, _, router := newTestEnv(t)
	createAt(t, router, "2025-05-01T00:00:00Z", 10, 10, "sat-1")
	createAt(t, router, "2025-05-01T00:00:00Z", 10, 10, "sat-2")

	rr := doJSON(t, router, http.MethodGet, "/observations?satellite_id=sat-2", nil)

	assert.Equal(t, []float64{2}, listIDs(t, rr))
}

func TestObservations_List_MalformedFilter(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodGet, "/observations?min_lat=wide", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errObj := decodeBody(t, rr)["error"].(map[string]any)
	assert.Equal(t, "validation_invalid_filter", errObj["code"])
	assert.Contains(t, errObj["message"], "min_lat")
}

// --- Replace (PUT) ---

func TestObservations_Replace_Success(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	replacement := validObservation()
	replacement["satellite_id"] = "sat-new"
	replacement["notes"] = "full replacement"
	rr := doJSON(t, router, http.MethodPut, "/observations/1", replacement)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "sat-new", body["satellite_id"])
	assert.Equal(t, "full replacement", body["notes"])
	assert.Equal(t, 1.0, body["id"])

	// Replaying the same replacement yields the same record.
	again := doJSON(t, router, http.MethodPut, "/observations/1", replacement)
	require.Equal(t, http.StatusOK, again.Code)
	repeat := decodeBody(t, again)
	assert.Equal(t, body["satellite_id"], repeat["satellite_id"])
	assert.Equal(t, body["created_at"], repeat["created_at"])
}

func TestObservations_Replace_RequiresFullPayload(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	rr := doJSON(t, router, http.MethodPut, "/observations/1", map[string]any{"notes": "only notes"})

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestObservations_Replace_ImmutableLocked(t *testing.T) {
	store, _, router := newTestEnv(t)
	seedLocked(store, 1)

	rr := doJSON(t, router, http.MethodPut, "/observations/1", validObservation())

	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden_immutable_record", decodeBody(t, rr)["error"].(map[string]any)["code"])
}

// --- Update (PATCH) ---

func TestObservations_Patch_PartialMerge(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	rr := doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{
		"notes":    "adjusted",
		"latitude": 12.0,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "adjusted", body["notes"])
	assert.Equal(t, 12.0, body["latitude"])
	// Untouched fields survive.
	assert.Equal(t, "sat-42", body["satellite_id"])
	assert.Equal(t, -122.6, body["longitude"])
}

func TestObservations_Patch_SuppliedFieldStillValidated(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	rr := doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{"longitude": 999.0})

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestObservations_Patch_ImmutableLocked(t *testing.T) {
	store, _, router := newTestEnv(t)
	seedLocked(store, 1)

	rr := doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{"notes": "nope"})

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestObservations_Patch_MutableWithinQuarter(t *testing.T) {
	store, clock, router := newTestEnv(t)
	_ = store
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	// Still inside Q2: mutation allowed.
	clock.Advance(24 * time.Hour)
	rr := doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{"notes": "ok"})
	require.Equal(t, http.StatusOK, rr.Code)

	// Cross into Q3: the record's quarter is closed.
	clock.Advance(60 * 24 * time.Hour)
	rr = doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{"notes": "late"})
	require.Equal(t, http.StatusForbidden, rr.Code)
}

// --- Delete ---

func TestObservations_Delete_Success(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	rr := doJSON(t, router, http.MethodDelete, "/observations/1", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/observations/1", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestObservations_Delete_ImmutableLocked(t *testing.T) {
	store, _, router := newTestEnv(t)
	seedLocked(store, 1)

	rr := doJSON(t, router, http.MethodDelete, "/observations/1", nil)

	require.Equal(t, http.StatusForbidden, rr.Code)

	// The record is still there.
	rr = doJSON(t, router, http.MethodGet, "/observations/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestObservations_Delete_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodDelete, "/observations/7", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// --- Bulk create ---

func TestObservations_BulkCreate_AllSucceed(t *testing.T) {
	_, _, router := newTestEnv(t)

	batch := []any{validObservation(), validObservation()}
	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", batch)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, int64(1), resp.Results[0].Observation.ID)
	assert.Equal(t, int64(2), resp.Results[1].Observation.ID)
}

func TestObservations_BulkCreate_PartialFailure(t *testing.T) {
	_, _, router := newTestEnv(t)

	batch := []any{
		validObservation(),
		map[string]any{"timestamp": "bad"},
		validObservation(),
	}
	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", batch)

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	// Results address records by submission index.
	assert.Equal(t, 0, resp.Results[0].Index)
	assert.Equal(t, "created", resp.Results[0].Status)
	assert.Equal(t, 1, resp.Results[1].Index)
	assert.Equal(t, "error", resp.Results[1].Status)
	assert.Equal(t, "created", resp.Results[2].Status)

	// The valid siblings were actually stored.
	list := doJSON(t, router, http.MethodGet, "/observations", nil)
	assert.Len(t, listIDs(t, list), 2)
}

func TestObservations_BulkCreate_AllFail(t *testing.T) {
	_, _, router := newTestEnv(t)

	batch := []any{
		map[string]any{"latitude": 999.0},
		map[string]any{},
	}
	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", batch)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)
}

func TestObservations_BulkCreate_NonObjectElement(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", []any{validObservation(), "not-an-object"})

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "validation_invalid_payload", resp.Results[1].Error.Code)
}

func TestObservations_BulkCreate_ObjectBodyRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", validObservation())

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestObservations_BulkCreate_EmptyArrayRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	rr := doJSON(t, router, http.MethodPost, "/observations/bulk", []any{})

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Bulk update ---

func TestObservations_BulkUpdate_Mixed(t *testing.T) {
	store, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())
	seedLocked(store, 50)

	batch := []any{
		map[string]any{"id": 1, "notes": "touched"},
		map[string]any{"id": 99, "notes": "ghost"},
		map[string]any{"id": 50, "notes": "locked"},
		map[string]any{"notes": "no id"},
	}
	rr := doJSON(t, router, http.MethodPatch, "/observations/bulk", batch)

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 3, resp.Failed)

	assert.Equal(t, "updated", resp.Results[0].Status)
	assert.Equal(t, "touched", resp.Results[0].Observation.Notes)
	assert.Equal(t, "not_found_observation", resp.Results[1].Error.Code)
	assert.Equal(t, "forbidden_immutable_record", resp.Results[2].Error.Code)
	assert.Equal(t, "validation_invalid_id", resp.Results[3].Error.Code)
}

func TestObservations_BulkUpdate_AllSucceed(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	batch := []any{
		map[string]any{"id": 1, "notes": "one"},
		map[string]any{"id": 2, "notes": "two"},
	}
	rr := doJSON(t, router, http.MethodPatch, "/observations/bulk", batch)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Succeeded)
}

func TestObservations_BulkUpdate_InvalidFieldReported(t *testing.T) {
	_, _, router := newTestEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	batch := []any{map[string]any{"id": 1, "latitude": 400.0}}
	rr := doJSON(t, router, http.MethodPatch, "/observations/bulk", batch)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp BulkResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "validation_failed", resp.Results[0].Error.Code)
}

// batchTrackingRepo wraps the store to observe how bulk updates reach it.
type batchTrackingRepo struct {
	*memstore.Store
	batches     [][]*types.Observation
	updateCalls int
	failBatch   bool
}

func (r *batchTrackingRepo) Update(ctx context.Context, o *types.Observation) error {
	r.updateCalls++
	return r.Store.Update(ctx, o)
}

func (r *batchTrackingRepo) ReplaceBatch(ctx context.Context, batch []*types.Observation) error {
	r.batches = append(r.batches, batch)
	if r.failBatch {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit batch", nil)
	}
	return r.Store.ReplaceBatch(ctx, batch)
}

func newBatchTrackingEnv(t *testing.T) (*batchTrackingRepo, chi.Router) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	repo := &batchTrackingRepo{Store: memstore.New(clock)}
	handler := NewObservationHandler(repo, slog.Default(), clock)

	r := chi.NewRouter()
	handler.RegisterRoutes(r, passAuth)
	return repo, r
}

func TestObservations_BulkUpdate_SurvivorsCommitAsOneBatch(t *testing.T) {
	repo, router := newBatchTrackingEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())
	doJSON(t, router, http.MethodPost, "/observations", validObservation())

	batch := []any{
		map[string]any{"id": 1, "notes": "one"},
		map[string]any{"notes": "no id"},
		map[string]any{"id": 2, "notes": "two"},
	}
	rr := doJSON(t, router, http.MethodPatch, "/observations/bulk", batch)

	require.Equal(t, http.StatusMultiStatus, rr.Code)
	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 2)
	assert.Zero(t, repo.updateCalls)
}

func TestObservations_BulkUpdate_BatchFailureAppliesNothing(t *testing.T) {
	repo, router := newBatchTrackingEnv(t)
	doJSON(t, router, http.MethodPost, "/observations", validObservation())
	doJSON(t, router, http.MethodPost, "/observations", validObservation())
	repo.failBatch = true

	batch := []any{
		map[string]any{"id": 1, "notes": "one"},
		map[string]any{"id": 2, "notes": "two"},
	}
	rr := doJSON(t, router, http.MethodPatch, "/observations/bulk", batch)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal_database_error", decodeBody(t, rr)["error"].(map[string]any)["code"])

	got, err := repo.Store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
}

// --- Filter after update ---

func TestObservations_PatchedValuesVisibleToFilters(t *testing.T) {
	_, _, router := newTestEnv(t)
	createAt(t, router, "2025-05-01T00:00:00Z", 10, 10, "sat-old")

	rr := doJSON(t, router, http.MethodPatch, "/observations/1", map[string]any{"satellite_id": "sat-new"})
	require.Equal(t, http.StatusOK, rr.Code)

	list := doJSON(t, router, http.MethodGet, "/observations?satellite_id=sat-new", nil)
	assert.Len(t, listIDs(t, list), 1)

	stale := doJSON(t, router, http.MethodGet, "/observations?satellite_id=sat-old", nil)
	assert.Len(t, listIDs(t, stale), 0)
}

// --- Repo failure surfaces as 500 envelope ---

type failingRepo struct {
	ObservationRepo
}

func (f *failingRepo) Create(ctx context.Context, o *types.Observation) error {
	return types.NewAppError(types.ErrCodeInternalDB, "failed to create observation", fmt.Errorf("down"))
}

func TestObservations_Create_StoreFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	repo := &failingRepo{ObservationRepo: memstore.New(clock)}
	handler := NewObservationHandler(repo, slog.Default(), clock)

	r := chi.NewRouter()
	handler.RegisterRoutes(r, passAuth)

	rr := doJSON(t, r, http.MethodPost, "/observations", validObservation())

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal_database_error", decodeBody(t, rr)["error"].(map[string]any)["code"])
}
