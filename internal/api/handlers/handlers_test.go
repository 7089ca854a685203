package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/api/handlers"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/docstore/memory"
	"github.com/dvloznov/financio/internal/history"
	"github.com/dvloznov/financio/internal/pipeline"
	"github.com/dvloznov/financio/internal/records"
)

// MockAdvisor is a mock implementation of advisor.Client.
type MockAdvisor struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockAdvisor) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateFunc(ctx, prompt)
}

// flakyStore fails list calls on one collection.
type flakyStore struct {
	docstore.Store
	failCollection string
}

func (s *flakyStore) ListDocuments(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if collection == s.failCollection {
		return nil, errors.New("503 service unavailable")
	}
	return s.Store.ListDocuments(ctx, collection, q)
}

func (s *flakyStore) GetDocument(ctx context.Context, collection, id string) (docstore.Document, error) {
	if collection == s.failCollection {
		return docstore.Document{}, errors.New("503 service unavailable")
	}
	return s.Store.GetDocument(ctx, collection, id)
}

func (s *flakyStore) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	if collection == s.failCollection {
		return docstore.Document{}, errors.New("503 service unavailable")
	}
	return s.Store.CreateDocument(ctx, collection, id, fields)
}

type server struct {
	store   *memory.Store
	advisor *MockAdvisor
	handler http.Handler
}

func newServer(t *testing.T, store docstore.Store, mem *memory.Store) *server {
	t.Helper()
	adv := &MockAdvisor{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return "Keep an emergency fund.", nil
	}}
	ledger := credits.NewLedger(store, "rate_limits", credits.FreeTierCredits)
	recs := records.NewStore(store, "ai_analyses")
	orch := pipeline.NewOrchestrator(pipeline.Dependencies{
		Ledger:  ledger,
		History: history.NewSource(store, "transactions", "categories"),
		Advisor: adv,
		Records: recs,
	})

	mux := http.NewServeMux()
	handlers.Register(mux, handlers.NewAnalysesHandler(orch, recs), handlers.NewCreditsHandler(ledger))
	return &server{store: mem, advisor: adv, handler: mux}
}

func newMemoryServer(t *testing.T) *server {
	mem := memory.New()
	return newServer(t, mem, mem)
}

func (s *server) seedLedger(t *testing.T, total, used int) {
	t.Helper()
	_, err := s.store.CreateDocument(context.Background(), "rate_limits", "user-1", map[string]any{
		"totalCredits": total, "usedCredits": used, "isPaid": false,
	})
	require.NoError(t, err)
}

func (s *server) seedTransactions(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	date := docstore.FormatTime(time.Now().Add(-24 * time.Hour))
	for id, fields := range map[string]map[string]any{
		"t1": {"userId": "user-1", "amount": 100, "type": "income", "date": date},
		"t2": {"userId": "user-1", "amount": 40, "type": "expense", "category": "food", "date": date},
		"t3": {"userId": "user-1", "amount": 20, "type": "expense", "category": "food", "date": date},
		"t4": {"userId": "user-1", "amount": 10, "type": "expense", "date": date},
	} {
		_, err := s.store.CreateDocument(ctx, "transactions", id, fields)
		require.NoError(t, err)
	}
	_, err := s.store.CreateDocument(ctx, "categories", "food", map[string]any{"userId": "user-1", "name": "Food"})
	require.NoError(t, err)
}

func (s *server) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRunAnalysis_Success(t *testing.T) {
	for _, path := range []string{"/", "/api/analyses"} {
		t.Run(path, func(t *testing.T) {
			s := newMemoryServer(t)
			s.seedLedger(t, 10, 9)
			s.seedTransactions(t)

			rec := s.do(http.MethodPost, path, `{"userId":"user-1"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, true, body["success"])
			assert.NotEmpty(t, body["analysisId"])
			assert.Equal(t, "Keep an emergency fund.", body["advice"])
			assert.NotEmpty(t, body["timestamp"])

			summary := body["summary"].(map[string]interface{})
			assert.Equal(t, 100.0, summary["total_income"])
			assert.Equal(t, 70.0, summary["total_expense"])
			assert.Equal(t, 30.0, summary["net_balance"])
			assert.Equal(t, 4.0, summary["transaction_count"])
			assert.Equal(t, map[string]interface{}{"Food": 60.0, "Unknown": 10.0}, summary["expense_by_category"])

			assert.Equal(t, map[string]interface{}{
				"totalCredits": 10.0, "usedCredits": 10.0, "remainingCredits": 0.0, "isPaid": false,
			}, body["credits"])
		})
	}
}

func TestRunAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		setup    func(t *testing.T, s *server)
		wantCode int
		want     map[string]interface{}
	}{
		{
			name:     "empty body",
			body:     "",
			wantCode: http.StatusBadRequest,
			want:     map[string]interface{}{"error": "userId is required", "code": "MISSING_USER_ID"},
		},
		{
			name:     "missing userId",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
			want:     map[string]interface{}{"error": "userId is required", "code": "MISSING_USER_ID"},
		},
		{
			name:     "malformed body",
			body:     `{"userId":`,
			wantCode: http.StatusBadRequest,
			want:     map[string]interface{}{"error": "Invalid request body", "code": "MISSING_USER_ID"},
		},
		{
			name:     "ledger not initialized",
			body:     `{"userId":"user-1"}`,
			wantCode: http.StatusTooManyRequests,
			want: map[string]interface{}{
				"error": "Rate limit not initialized. Please refresh the page.", "code": "NOT_INITIALIZED",
			},
		},
		{
			name:     "credits exhausted",
			body:     `{"userId":"user-1"}`,
			setup:    func(t *testing.T, s *server) { s.seedLedger(t, 10, 10) },
			wantCode: http.StatusTooManyRequests,
			want: map[string]interface{}{
				"error": "No credits remaining", "code": "NO_CREDITS",
				"totalCredits": 10.0, "usedCredits": 10.0, "remainingCredits": 0.0,
				"message": "Upgrade to premium to get 50 additional credits!",
			},
		},
		{
			name:     "no transactions",
			body:     `{"userId":"user-1"}`,
			setup:    func(t *testing.T, s *server) { s.seedLedger(t, 10, 0) },
			wantCode: http.StatusBadRequest,
			want: map[string]interface{}{
				"error": "No transactions found. Please add some transactions first.", "code": "NO_TRANSACTIONS",
			},
		},
		{
			name: "advisor failure",
			body: `{"userId":"user-1"}`,
			setup: func(t *testing.T, s *server) {
				s.seedLedger(t, 10, 0)
				s.seedTransactions(t)
				s.advisor.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
					return "", advisor.ErrAdvisory
				}
			},
			wantCode: http.StatusInternalServerError,
			want:     map[string]interface{}{"error": "Internal error", "code": "INTERNAL_ERROR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemoryServer(t)
			if tt.setup != nil {
				tt.setup(t, s)
			}

			rec := s.do(http.MethodPost, "/api/analyses", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec))
		})
	}
}

func TestRunAnalysis_StoreFailureIsOpaque(t *testing.T) {
	mem := memory.New()
	s := newServer(t, &flakyStore{Store: mem, failCollection: "transactions"}, mem)
	s.seedLedger(t, 10, 0)

	rec := s.do(http.MethodPost, "/api/analyses", `{"userId":"user-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]interface{}{"error": "Database error", "code": "APPWRITE_ERROR"}, decode(t, rec))
	assert.NotContains(t, rec.Body.String(), "503")
}

func TestListAndGetAnalyses(t *testing.T) {
	s := newMemoryServer(t)
	s.seedLedger(t, 10, 0)
	s.seedTransactions(t)

	first := decode(t, s.do(http.MethodPost, "/api/analyses", `{"userId":"user-1"}`))
	id := first["analysisId"].(string)

	rec := s.do(http.MethodGet, "/api/analyses?userId=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, 1.0, list["count"])
	item := list["analyses"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, id, item["id"])
	assert.Equal(t, 30.0, item["periodDays"])

	rec = s.do(http.MethodGet, "/api/analyses/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "user-1", got["userId"])
	assert.Equal(t, "Keep an emergency fund.", got["advice"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/analyses/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/analyses", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/analyses?userId=user-1&limit=zero", "").Code)
}

func TestCredits(t *testing.T) {
	s := newMemoryServer(t)

	rec := s.do(http.MethodGet, "/api/credits/user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_INITIALIZED", decode(t, rec)["code"])

	rec = s.do(http.MethodPost, "/api/credits/user-1", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]interface{}{
		"totalCredits": 10.0, "usedCredits": 0.0, "remainingCredits": 10.0, "isPaid": false,
	}, decode(t, rec))

	rec = s.do(http.MethodPost, "/api/credits/user-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/credits/user-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, decode(t, rec)["remainingCredits"])
}

func TestReadEndpoints_StoreFailureIsOpaque(t *testing.T) {
	opaque := map[string]interface{}{"error": "Database error", "code": "APPWRITE_ERROR"}

	mem := memory.New()
	analyses := newServer(t, &flakyStore{Store: mem, failCollection: "ai_analyses"}, mem)
	for _, path := range []string{"/api/analyses?userId=user-1", "/api/analyses/a1"} {
		rec := analyses.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, opaque, decode(t, rec), path)
	}

	mem = memory.New()
	ledger := newServer(t, &flakyStore{Store: mem, failCollection: "rate_limits"}, mem)
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := ledger.do(method, "/api/credits/user-1", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, method)
		assert.Equal(t, opaque, decode(t, rec), method)
	}
}

func TestHealth(t *testing.T) {
	rec := newMemoryServer(t).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
