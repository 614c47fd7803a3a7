package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentpipe/sourcing/internal/api"
	"github.com/talentpipe/sourcing/internal/config"
	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/external"
	"github.com/talentpipe/sourcing/internal/ledger"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/queue"
	"github.com/talentpipe/sourcing/internal/scoring"
	"github.com/talentpipe/sourcing/internal/workflow"
)

type nopPublisher struct{}

func (nopPublisher) Publish(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

type nopBus struct{}

func (nopBus) Emit(_ context.Context, _, _ string, _ any) {}

type nopEvaluator struct{}

func (nopEvaluator) Evaluate(_ context.Context, _, _ json.RawMessage, _ string) (*external.EvaluateResult, error) {
	return &external.EvaluateResult{}, nil
}

type nopSourcer struct{}

func (nopSourcer) ExecuteStrategy(_ context.Context, _ json.RawMessage) (string, error) {
	return "task-1", nil
}

func (nopSourcer) PollResults(_ context.Context, _ string) (*external.TaskResult, error) {
	return &external.TaskResult{Status: "completed"}, nil
}

type nopParser struct{}

func (nopParser) ParseQuery(_ context.Context, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type nopCalculator struct{}

func (nopCalculator) CalculateModel(_ context.Context, _ json.RawMessage) (json.RawMessage, int, error) {
	return json.RawMessage(`{}`), 1, nil
}

type testServer struct {
	engine *gin.Engine
	mock   sqlmock.Sqlmock
	signer *queue.Signer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	log := logger.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	signer := queue.NewSigner("router-test-key", "")

	searches := database.NewSearchRepository(sqlxDB)
	strategies := database.NewStrategyRepository(sqlxDB)
	candidates := database.NewCandidateRepository(sqlxDB)
	credits := database.NewCreditRepository(sqlxDB)
	models := modelcache.NewService(modelcache.NewRepository(sqlxDB), nopCalculator{}, log)

	aggregator := scoring.NewAggregator(candidates)
	dispatcher := scoring.NewDispatcher(searches, candidates, models, nopPublisher{}, nopBus{}, m, log)
	worker := scoring.NewWorker(searches, candidates, models, nopEvaluator{}, aggregator,
		nopBus{}, m, log, scoring.WorkerConfig{MaxAttempts: 1, Backoff: time.Millisecond})
	orchestrator := workflow.NewOrchestrator(searches, strategies, candidates, models,
		nopSourcer{}, nopParser{}, nopPublisher{}, nopBus{}, m, log,
		workflow.Config{PollInterval: time.Millisecond, MaxPollAttempts: 1})
	creditLedger := ledger.New(credits, m, log, 10)

	handlers := api.NewHandlers(worker, dispatcher, orchestrator, aggregator, creditLedger, log, "test")
	engine := api.NewRouter(handlers, signer, &config.ServerConfig{RateLimitPerMinute: 1000}, false, log)

	return &testServer{engine: engine, mock: mock, signer: signer}
}

func (s *testServer) do(method, path string, body []byte, signed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		req.Header.Set(queue.SignatureHeader, s.signer.Sign(body))
	}
	recorder := httptest.NewRecorder()
	s.engine.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.do(http.MethodGet, "/health", nil, false)

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "sourcing", resp["service"])
	assert.Equal(t, "test", resp["version"])
}

func TestCallbackEndpointsRejectUnsignedRequests(t *testing.T) {
	srv := newTestServer(t)
	body := []byte(`{"searchId":"s-1"}`)

	for _, path := range []string{
		"/api/v1/scoring/candidate",
		"/api/v1/workflow/scoring",
		"/api/v1/workflow/strategy",
	} {
		recorder := srv.do(http.MethodPost, path, body, false)
		assert.Equal(t, http.StatusForbidden, recorder.Code, "path %s", path)
	}
}

func TestDispatchScoringValidatesPayload(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name string
		body []byte
	}{
		{name: "malformed json", body: []byte(`{"searchId":`)},
		{name: "missing searchId", body: []byte(`{"parallelism":3}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := srv.do(http.MethodPost, "/api/v1/workflow/scoring", tc.body, true)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestDispatchScoringConflictsWithoutComputedModel(t *testing.T) {
	srv := newTestServer(t)

	searchColumns := []string{
		"id", "organization_id", "query", "parsed_criteria",
		"status", "progress", "created_at", "updated_at",
	}
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	srv.mock.ExpectQuery("SELECT (.+) FROM searches").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(searchColumns).
			AddRow("s-1", "org-1", "golang engineers", nil, "processing", 0, now, now))
	srv.mock.ExpectQuery("SELECT (.+) FROM scoring_models").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"search_id", "status", "version", "checksum", "payload", "created_at", "computed_at",
		}))

	recorder := srv.do(http.MethodPost, "/api/v1/workflow/scoring",
		[]byte(`{"searchId":"s-1"}`), true)

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestRunStrategyRequiresStrategyID(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.do(http.MethodPost, "/api/v1/workflow/strategy",
		[]byte(`{"searchId":"s-1"}`), true)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestScoreCandidateRequiresIdentifiers(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.do(http.MethodPost, "/api/v1/scoring/candidate",
		[]byte(`{"searchId":"s-1"}`), true)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetProgressReturnsCountsAndBuckets(t *testing.T) {
	srv := newTestServer(t)

	srv.mock.ExpectQuery("FROM search_candidates").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "scored", "errors"}).
			AddRow(10, 6, 1))
	srv.mock.ExpectQuery("FROM search_candidates").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).
			AddRow("strong", 2).
			AddRow("fair", 4))

	recorder := srv.do(http.MethodGet, "/api/v1/searches/s-1/progress", nil, false)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{
		"search_id": "s-1",
		"total": 10,
		"scored": 6,
		"errors": 1,
		"buckets": {"strong": 2, "fair": 4}
	}`, recorder.Body.String())
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestConsumeCreditsRejectsNonPositiveAmount(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.do(http.MethodPost, "/api/v1/credits/consume",
		[]byte(`{"organizationId":"org-1","userId":"u-1","amount":0,"creditType":"reveal"}`), false)

	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
}

func TestGetCreditsUsageValidatesQueryParams(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name string
		path string
	}{
		{name: "missing organizationId", path: "/api/v1/credits/usage?from=2026-03-01T00:00:00Z&to=2026-03-31T00:00:00Z"},
		{name: "bad from", path: "/api/v1/credits/usage?organizationId=org-1&from=yesterday&to=2026-03-31T00:00:00Z"},
		{name: "bad to", path: "/api/v1/credits/usage?organizationId=org-1&from=2026-03-01T00:00:00Z&to=soon"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := srv.do(http.MethodGet, tc.path, nil, false)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestUnknownSearchProgressIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	// LaunchStrategies loads the search first; an unknown id maps to 404.
	srv.mock.ExpectQuery("SELECT (.+) FROM searches").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	recorder := srv.do(http.MethodPost, "/api/v1/searches/missing/strategies",
		[]byte(`{"strategies":[{"name":"linkedin","payload":{}}]}`), false)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}
