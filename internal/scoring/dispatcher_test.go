package scoring_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentpipe/sourcing/internal/database"
	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/modelcache"
	"github.com/talentpipe/sourcing/internal/realtime"
	"github.com/talentpipe/sourcing/internal/scoring"
)

// publishedJob records one Publish call for assertions.
type publishedJob struct {
	path  string
	body  any
	delay time.Duration
}

type stubPublisher struct {
	published []publishedJob
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, path string, body any, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedJob{path: path, body: body, delay: delay})
	return nil
}

type busEvent struct {
	channel string
	event   string
	payload any
}

type stubBus struct {
	events []busEvent
}

func (b *stubBus) Emit(_ context.Context, channel, event string, payload any) {
	b.events = append(b.events, busEvent{channel: channel, event: event, payload: payload})
}

func (b *stubBus) eventNames() []string {
	names := make([]string, 0, len(b.events))
	for _, e := range b.events {
		names = append(names, e.event)
	}
	return names
}

type stubCalculator struct{}

func (stubCalculator) CalculateModel(_ context.Context, _ json.RawMessage) (json.RawMessage, int, error) {
	return json.RawMessage(`{}`), 1, nil
}

var searchColumns = []string{
	"id", "organization_id", "query", "parsed_criteria", "status",
	"progress", "created_at", "updated_at",
}

var candidateColumns = []string{
	"id", "search_id", "candidate_id", "profile", "match_score",
	"scoring_result", "scoring_error", "scoring_error_at", "scoring_attempts",
	"scoring_updated_at", "created_at",
}

var modelColumns = []string{
	"search_id", "status", "version", "checksum", "payload", "created_at", "computed_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectSearchRow(mock sqlmock.Sqlmock, searchID string) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM searches").
		WithArgs(searchID).
		WillReturnRows(sqlmock.NewRows(searchColumns).
			AddRow(searchID, "org-1", "golang engineer",
				[]byte(`{"skills":["go"]}`), "scoring", 0, now, now))
}

func expectComputedModel(mock sqlmock.Sqlmock, searchID string) {
	now := time.Now()
	payload := []byte(`{"weights":{}}`)
	mock.ExpectQuery("SELECT (.+) FROM scoring_models").
		WithArgs(searchID).
		WillReturnRows(sqlmock.NewRows(modelColumns).
			AddRow(searchID, "computed", 1, modelcache.ChecksumOf(payload), payload, now, &now))
}

func newDispatcher(db *sqlx.DB, publisher *stubPublisher, bus *stubBus) *scoring.Dispatcher {
	return scoring.NewDispatcher(
		database.NewSearchRepository(db),
		database.NewCandidateRepository(db),
		modelcache.NewService(modelcache.NewRepository(db), stubCalculator{}, logger.NewNop()),
		publisher,
		bus,
		metrics.New(prometheus.NewRegistry()),
		logger.NewNop(),
	)
}

func TestDispatcherBucketsDelaysByParallelism(t *testing.T) {
	db, mock := newMockDB(t)
	publisher := &stubPublisher{}
	bus := &stubBus{}
	dispatcher := newDispatcher(db, publisher, bus)

	expectSearchRow(mock, "search-1")
	expectComputedModel(mock, "search-1")

	unscored := sqlmock.NewRows(candidateColumns)
	for _, id := range []string{"row-1", "row-2", "row-3", "row-4", "row-5"} {
		unscored.AddRow(id, "search-1", "cand-"+id, []byte(`{}`), nil, nil, nil, nil, 0, nil, time.Now())
	}
	mock.ExpectQuery("SELECT (.+) FROM search_candidates").
		WithArgs("search-1").
		WillReturnRows(unscored)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("search-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	queued, err := dispatcher.Dispatch(context.Background(), "search-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, queued)

	require.Len(t, publisher.published, 5)
	wantDelays := []time.Duration{0, 0, 2 * time.Second, 2 * time.Second, 4 * time.Second}
	for i, p := range publisher.published {
		assert.Equal(t, scoring.CandidateJobPath, p.path)
		assert.Equal(t, wantDelays[i], p.delay, "job %d", i)

		job, ok := p.body.(scoring.Job)
		require.True(t, ok)
		assert.Equal(t, "search-1", job.SearchID)
		assert.Equal(t, 5, job.Total)
	}

	assert.Equal(t, []string{realtime.EventScoringStarted}, bus.eventNames())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherRequiresComputedModel(t *testing.T) {
	db, mock := newMockDB(t)
	publisher := &stubPublisher{}
	dispatcher := newDispatcher(db, publisher, &stubBus{})

	expectSearchRow(mock, "search-1")
	// No cache entry: dispatch must fail fast instead of racing workers
	// against a model computed mid-batch.
	mock.ExpectQuery("SELECT (.+) FROM scoring_models").
		WithArgs("search-1").
		WillReturnRows(sqlmock.NewRows(modelColumns))

	_, err := dispatcher.Dispatch(context.Background(), "search-1", 5)
	assert.ErrorIs(t, err, domain.ErrModelNotComputed)
	assert.Empty(t, publisher.published)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcherNothingToDo(t *testing.T) {
	db, mock := newMockDB(t)
	publisher := &stubPublisher{}
	bus := &stubBus{}
	dispatcher := newDispatcher(db, publisher, bus)

	expectSearchRow(mock, "search-1")
	expectComputedModel(mock, "search-1")
	mock.ExpectQuery("SELECT (.+) FROM search_candidates").
		WithArgs("search-1").
		WillReturnRows(sqlmock.NewRows(candidateColumns))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("search-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))

	queued, err := dispatcher.Dispatch(context.Background(), "search-1", 5)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Empty(t, publisher.published)
	assert.Empty(t, bus.events, "no started event when nothing is dispatched")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelayFor(t *testing.T) {
	testCases := []struct {
		name        string
		index       int
		parallelism int
		want        time.Duration
	}{
		{name: "first bucket start", index: 0, parallelism: 5, want: 0},
		{name: "first bucket end", index: 4, parallelism: 5, want: 0},
		{name: "second bucket", index: 5, parallelism: 5, want: 2 * time.Second},
		{name: "third bucket", index: 12, parallelism: 5, want: 4 * time.Second},
		{name: "parallelism one", index: 3, parallelism: 1, want: 6 * time.Second},
		{name: "invalid parallelism falls back to default", index: 5, parallelism: 0, want: 2 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scoring.DelayFor(tc.index, tc.parallelism))
		})
	}
}
