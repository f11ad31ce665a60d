package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/internal/tagging"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// --- mock RunService ---

type mockService struct {
	startFn   func(params tagging.StartParams) (*models.Run, error)
	getFn     func(id uuid.UUID) (*models.Run, error)
	pauseFn   func(id uuid.UUID) error
	resumeFn  func(id uuid.UUID) error
	stopFn    func(id uuid.UUID) error
	listFn    func(limit int) ([]*models.Run, error)
	resultsFn func(id uuid.UUID) ([]*models.ImageResult, error)
}

func (m *mockService) StartRun(_ context.Context, params tagging.StartParams) (*models.Run, error) {
	return m.startFn(params)
}
func (m *mockService) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	return m.getFn(id)
}
func (m *mockService) Pause(id uuid.UUID) error  { return m.pauseFn(id) }
func (m *mockService) Resume(id uuid.UUID) error { return m.resumeFn(id) }
func (m *mockService) Stop(id uuid.UUID) error   { return m.stopFn(id) }
func (m *mockService) ListRuns(_ context.Context, limit int) ([]*models.Run, error) {
	return m.listFn(limit)
}
func (m *mockService) Results(_ context.Context, id uuid.UUID) ([]*models.ImageResult, error) {
	return m.resultsFn(id)
}

func sampleRun(id uuid.UUID) *models.Run {
	return &models.Run{
		ID:     id,
		Folder: "/photos",
		State:  models.RunStateRunning,
		Total:  5,
	}
}

// --- helpers ---

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func getWithRunID(t *testing.T, h http.HandlerFunc, id string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runID", id)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return env.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	return env.Error.Code
}

// --- start ---

func TestStartRun(t *testing.T) {
	id := uuid.New()
	svc := &mockService{
		startFn: func(params tagging.StartParams) (*models.Run, error) {
			if params.Folder != "/photos" {
				t.Errorf("unexpected folder %q", params.Folder)
			}
			if params.BatchSize != 4 {
				t.Errorf("unexpected batch size %d", params.BatchSize)
			}
			return sampleRun(id), nil
		},
	}

	rec := postJSON(t, NewStartRunHandler(svc), "/api/v1/runs", map[string]any{
		"folder":     "/photos",
		"batch_size": 4,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["id"] != id.String() {
		t.Errorf("expected run id %s, got %v", id, data["id"])
	}
}

func TestStartRunValidation(t *testing.T) {
	svc := &mockService{}
	h := NewStartRunHandler(svc)

	cases := []struct {
		name string
		body any
	}{
		{"missing folder", map[string]any{"batch_size": 1}},
		{"negative batch size", map[string]any{"folder": "/p", "batch_size": -1}},
		{"negative workers", map[string]any{"folder": "/p", "workers": -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/v1/runs", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != "INVALID_REQUEST" {
				t.Errorf("expected INVALID_REQUEST, got %s", code)
			}
		})
	}
}

func TestStartRunInvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	NewStartRunHandler(&mockService{}).ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStartRunNoImages(t *testing.T) {
	svc := &mockService{
		startFn: func(tagging.StartParams) (*models.Run, error) {
			return nil, tagging.ErrNoImages
		},
	}
	rec := postJSON(t, NewStartRunHandler(svc), "/api/v1/runs", map[string]any{"folder": "/empty"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "NO_IMAGES" {
		t.Errorf("expected NO_IMAGES, got %s", code)
	}
}

func TestStartRunConflict(t *testing.T) {
	svc := &mockService{
		startFn: func(tagging.StartParams) (*models.Run, error) {
			return nil, tagging.ErrRunActive
		},
	}
	rec := postJSON(t, NewStartRunHandler(svc), "/api/v1/runs", map[string]any{"folder": "/p"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "RUN_ACTIVE" {
		t.Errorf("expected RUN_ACTIVE, got %s", code)
	}
}

// --- get ---

func TestGetRun(t *testing.T) {
	id := uuid.New()
	svc := &mockService{
		getFn: func(got uuid.UUID) (*models.Run, error) {
			if got != id {
				t.Errorf("expected id %s, got %s", id, got)
			}
			return sampleRun(id), nil
		},
	}
	rec := getWithRunID(t, NewGetRunHandler(svc), id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["state"] != models.RunStateRunning {
		t.Errorf("expected running state, got %v", data["state"])
	}
}

func TestGetRunNotFound(t *testing.T) {
	svc := &mockService{
		getFn: func(uuid.UUID) (*models.Run, error) {
			return nil, tagging.ErrNoSuchRun
		},
	}
	rec := getWithRunID(t, NewGetRunHandler(svc), uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetRunBadID(t *testing.T) {
	rec := getWithRunID(t, NewGetRunHandler(&mockService{}), "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- control ---

func TestControlActions(t *testing.T) {
	id := uuid.New()
	var paused, resumed, stopped bool
	svc := &mockService{
		pauseFn:  func(uuid.UUID) error { paused = true; return nil },
		resumeFn: func(uuid.UUID) error { resumed = true; return nil },
		stopFn:   func(uuid.UUID) error { stopped = true; return nil },
		getFn:    func(uuid.UUID) (*models.Run, error) { return sampleRun(id), nil },
	}

	for _, action := range []func(RunService, uuid.UUID) error{PauseAction, ResumeAction, StopAction} {
		rec := getWithRunID(t, NewControlHandler(svc, action), id.String())
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}
	if !paused || !resumed || !stopped {
		t.Errorf("actions not dispatched: paused=%v resumed=%v stopped=%v", paused, resumed, stopped)
	}
}

func TestControlNotCurrent(t *testing.T) {
	svc := &mockService{
		pauseFn: func(uuid.UUID) error { return tagging.ErrNotCurrent },
	}
	rec := getWithRunID(t, NewControlHandler(svc, PauseAction), uuid.NewString())
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

// --- list ---

func TestListRuns(t *testing.T) {
	svc := &mockService{
		listFn: func(limit int) ([]*models.Run, error) {
			if limit != 0 {
				t.Errorf("expected default limit 0, got %d", limit)
			}
			return []*models.Run{sampleRun(uuid.New()), sampleRun(uuid.New())}, nil
		},
	}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	NewListRunsHandler(svc).ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(env.Data) != 2 || env.Meta.Total != 2 {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
}

func TestListRunsLimit(t *testing.T) {
	svc := &mockService{
		listFn: func(limit int) ([]*models.Run, error) {
			if limit != 5 {
				t.Errorf("expected limit 5, got %d", limit)
			}
			return nil, nil
		},
	}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5", nil)
	rec := httptest.NewRecorder()
	NewListRunsHandler(svc).ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env struct {
		Data []any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if env.Data == nil {
		t.Error("expected empty array, got null")
	}
}

func TestListRunsBadLimit(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit="+raw, nil)
		rec := httptest.NewRecorder()
		NewListRunsHandler(&mockService{}).ServeHTTP(rec, r)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", raw, rec.Code)
		}
		if code := decodeErrorCode(t, rec); code != "INVALID_REQUEST" {
			t.Errorf("limit=%s: expected INVALID_REQUEST, got %s", raw, code)
		}
	}
}

// --- results ---

func TestListResults(t *testing.T) {
	id := uuid.New()
	svc := &mockService{
		resultsFn: func(uuid.UUID) ([]*models.ImageResult, error) {
			r := models.SuccessResult(id, "/photos/a.jpg",
				models.TagSet{Title: "A", Tags: []string{"x"}}, "")
			return []*models.ImageResult{&r}, nil
		},
	}
	rec := getWithRunID(t, NewListResultsHandler(svc), id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(env.Data) != 1 || env.Meta.Total != 1 {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
	if env.Data[0]["path"] != "/photos/a.jpg" {
		t.Errorf("unexpected path %v", env.Data[0]["path"])
	}
}

func TestListResultsEmpty(t *testing.T) {
	svc := &mockService{
		resultsFn: func(uuid.UUID) ([]*models.ImageResult, error) { return nil, nil },
	}
	rec := getWithRunID(t, NewListResultsHandler(svc), uuid.NewString())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env struct {
		Data []any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if env.Data == nil {
		t.Error("expected empty array, got null")
	}
}
