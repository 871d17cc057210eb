// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/database"
	"github.com/tomtom215/visionary/internal/models"
)

type fakeStore struct {
	pingErr  error
	watchErr error

	watches [][2]int64
	subs    [][2]int64
	unsubs  [][2]int64
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

func (f *fakeStore) RecordWatchEvent(_ context.Context, userID, visionID int64) error {
	if f.watchErr != nil {
		return f.watchErr
	}
	f.watches = append(f.watches, [2]int64{userID, visionID})
	return nil
}

func (f *fakeStore) Subscribe(_ context.Context, userID, creatorID int64) error {
	f.subs = append(f.subs, [2]int64{userID, creatorID})
	return nil
}

func (f *fakeStore) Unsubscribe(_ context.Context, userID, creatorID int64) error {
	f.unsubs = append(f.unsubs, [2]int64{userID, creatorID})
	return nil
}

func (f *fakeStore) GetLastRun(_ context.Context) (*models.BatchRun, error) {
	return &models.BatchRun{ID: "run-1", Status: models.RunSucceeded, StartedAt: time.Now()}, nil
}

func (f *fakeStore) CountSimilarityEdges(_ context.Context) (int64, error) { return 42, nil }
func (f *fakeStore) CountCurrentIndexes(_ context.Context) (int64, error)  { return 1, nil }

type fakeRecommender struct {
	similar    []models.SimilarVision
	similarErr error
	entries    []models.FeedEntry
	cached     bool
}

func (f *fakeRecommender) SimilarVisions(_ context.Context, _ int64, k int) ([]models.SimilarVision, models.SimilaritySource, error) {
	if f.similarErr != nil {
		return nil, "", f.similarErr
	}
	res := f.similar
	if len(res) > k {
		res = res[:k]
	}
	return res, models.SourceIndex, nil
}

func (f *fakeRecommender) RecommendedFeed(_ context.Context, _ int64, _ models.FeedFilter, _ int) ([]models.FeedEntry, bool, error) {
	return f.entries, f.cached, nil
}

func (f *fakeRecommender) TrendingVisions(_ context.Context, _ models.FeedFilter, _ int) ([]models.FeedEntry, bool, error) {
	return f.entries, f.cached, nil
}

func testServer(store *fakeStore, rec *fakeRecommender) http.Handler {
	cfg := config.ServerConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
	}
	return NewRouter(NewHandler(store, rec), cfg).Setup()
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not a valid envelope: %v\n%s", err, rr.Body.String())
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRecommender{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	if resp.Status != "success" {
		t.Errorf("envelope status = %q, want success", resp.Status)
	}
}

func TestHealthEndpointDatabaseDown(t *testing.T) {
	srv := testServer(&fakeStore{pingErr: errors.New("connection refused")}, &fakeRecommender{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error envelope = %+v, want SERVICE_UNAVAILABLE", resp.Error)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRecommender{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	data, ok := decodeEnvelope(t, rr).Data.(map[string]interface{})
	if !ok {
		t.Fatal("status data is not an object")
	}
	if data["index_available"] != true {
		t.Error("index_available = false, want true")
	}
	if data["similarity_edges"].(float64) != 42 {
		t.Errorf("similarity_edges = %v, want 42", data["similarity_edges"])
	}
}

func TestSimilarEndpoint(t *testing.T) {
	rec := &fakeRecommender{similar: []models.SimilarVision{
		{VisionID: 2, Score: 0.9},
		{VisionID: 3, Score: 0.7},
	}}
	srv := testServer(&fakeStore{}, rec)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/visions/1/similar?k=2", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rr.Code, rr.Body.String())
	}
	data := decodeEnvelope(t, rr).Data.(map[string]interface{})
	if data["source"] != "index" {
		t.Errorf("source = %v, want index", data["source"])
	}
	if results := data["results"].([]interface{}); len(results) != 2 {
		t.Errorf("results = %d, want 2", len(results))
	}
}

func TestSimilarEndpointValidation(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRecommender{})

	tests := []struct {
		name string
		path string
	}{
		{"non-numeric id", "/api/v1/visions/abc/similar"},
		{"zero id", "/api/v1/visions/0/similar"},
		{"k too large", "/api/v1/visions/1/similar?k=999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestSimilarEndpointNotFound(t *testing.T) {
	rec := &fakeRecommender{similarErr: database.ErrVisionNotFound}
	srv := testServer(&fakeStore{}, rec)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/visions/999/similar", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestFeedEndpoint(t *testing.T) {
	rec := &fakeRecommender{
		entries: []models.FeedEntry{{Vision: models.Vision{ID: 7}, Score: 12}},
		cached:  true,
	}
	srv := testServer(&fakeStore{}, rec)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/feed?user_id=5&filter=vod", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rr.Code, rr.Body.String())
	}
	resp := decodeEnvelope(t, rr)
	if !resp.Metadata.Cached {
		t.Error("cached metadata flag not propagated")
	}
}

func TestFeedEndpointValidation(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRecommender{})

	tests := []struct {
		name string
		path string
	}{
		{"missing user", "/api/v1/feed"},
		{"bad filter", "/api/v1/feed?user_id=5&filter=bogus"},
		{"negative page", "/api/v1/feed?user_id=5&page=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestTrendingEndpoint(t *testing.T) {
	rec := &fakeRecommender{entries: []models.FeedEntry{{Vision: models.Vision{ID: 3}, Score: 0.2}}}
	srv := testServer(&fakeStore{}, rec)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/trending?filter=live", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rr.Code, rr.Body.String())
	}
}

func TestRecordWatchEndpoint(t *testing.T) {
	store := &fakeStore{}
	srv := testServer(store, &fakeRecommender{})

	body, _ := json.Marshal(WatchEventRequest{UserID: 5, VisionID: 9})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/watch", bytes.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\n%s", rr.Code, rr.Body.String())
	}
	if len(store.watches) != 1 || store.watches[0] != [2]int64{5, 9} {
		t.Errorf("recorded watches = %v, want [[5 9]]", store.watches)
	}
}

func TestRecordWatchEndpointUnknownVision(t *testing.T) {
	store := &fakeStore{watchErr: database.ErrVisionNotFound}
	srv := testServer(store, &fakeRecommender{})

	body, _ := json.Marshal(WatchEventRequest{UserID: 5, VisionID: 404})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/watch", bytes.NewReader(body)))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestRecordWatchEndpointBadBody(t *testing.T) {
	srv := testServer(&fakeStore{}, &fakeRecommender{})

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/watch",
		bytes.NewReader([]byte("{not json"))))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	store := &fakeStore{}
	srv := testServer(store, &fakeRecommender{})

	body, _ := json.Marshal(SubscriptionRequest{UserID: 5, CreatorID: 2})
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("subscribe status = %d, want 200", rr.Code)
	}
	if len(store.subs) != 1 {
		t.Errorf("subscriptions recorded = %d, want 1", len(store.subs))
	}

	body, _ = json.Marshal(SubscriptionRequest{UserID: 5, CreatorID: 2})
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("unsubscribe status = %d, want 200", rr.Code)
	}
	if len(store.unsubs) != 1 {
		t.Errorf("unsubscriptions recorded = %d, want 1", len(store.unsubs))
	}
}

func TestRateLimitEnvelope(t *testing.T) {
	cfg := config.ServerConfig{
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   2,
		RateLimitWindow: time.Minute,
	}
	srv := NewRouter(NewHandler(&fakeStore{}, &fakeRecommender{}), cfg).Setup()

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "10.1.2.3:4000"
		srv.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last.Code)
	}
	resp := decodeEnvelope(t, last)
	if resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v, want TOO_MANY_REQUESTS", resp.Error)
	}
}
