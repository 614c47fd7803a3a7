package external_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/external"
	"github.com/talentpipe/sourcing/internal/logger"
)

const testTimeout = 5 * time.Second

func TestParseClientParseQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "senior golang engineer in berlin", req["message"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"parsedCriteria":{"title":"engineer","location":"berlin"}}`))
	}))
	defer server.Close()

	client := external.NewParseClient(server.URL, testTimeout, logger.NewNop())

	criteria, err := client.ParseQuery(context.Background(), "senior golang engineer in berlin")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"engineer","location":"berlin"}`, string(criteria))
}

func TestScoringModelClientCalculateModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scoringModel":{"weights":{"skills":0.6}},"version":4}`))
	}))
	defer server.Close()

	client := external.NewScoringModelClient(server.URL, testTimeout, logger.NewNop())

	payload, version, err := client.CalculateModel(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	assert.JSONEq(t, `{"weights":{"skills":0.6}}`, string(payload))
}

func TestScoringModelClientDefaultsVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scoringModel":{"weights":{}}}`))
	}))
	defer server.Close()

	client := external.NewScoringModelClient(server.URL, testTimeout, logger.NewNop())

	_, version, err := client.CalculateModel(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestEvaluateClientEvaluate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "candidate_profile")
		assert.Contains(t, req, "scoring_model")

		_, _ = w.Write([]byte(`{"final_score":87.4,"signals":{"skills":0.9}}`))
	}))
	defer server.Close()

	client := external.NewEvaluateClient(server.URL, testTimeout, logger.NewNop())

	result, err := client.Evaluate(context.Background(),
		json.RawMessage(`{"name":"Ada"}`), json.RawMessage(`{"weights":{}}`), "cand-1")
	require.NoError(t, err)

	require.NotNil(t, result.FinalScore)
	assert.InDelta(t, 87.4, *result.FinalScore, 0.001)
	assert.JSONEq(t, `{"final_score":87.4,"signals":{"skills":0.9}}`, string(result.Raw),
		"raw body preserved for persistence")
}

func TestEvaluateClientMissingScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"signals":{}}`))
	}))
	defer server.Close()

	client := external.NewEvaluateClient(server.URL, testTimeout, logger.NewNop())

	result, err := client.Evaluate(context.Background(),
		json.RawMessage(`{}`), json.RawMessage(`{}`), "cand-1")
	require.NoError(t, err)
	assert.Nil(t, result.FinalScore)
}

func TestSourcingClientExecuteStrategy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)

		var req struct {
			Strategies []json.RawMessage `json:"strategies"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Strategies, 1)

		_, _ = w.Write([]byte(`{"task_id":"task-42"}`))
	}))
	defer server.Close()

	client := external.NewSourcingClient(server.URL, testTimeout, logger.NewNop())

	taskID, err := client.ExecuteStrategy(context.Background(), json.RawMessage(`{"source":"linkedin"}`))
	require.NoError(t, err)
	assert.Equal(t, "task-42", taskID)
}

func TestSourcingClientExecuteStrategyRejectsEmptyTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := external.NewSourcingClient(server.URL, testTimeout, logger.NewNop())

	_, err := client.ExecuteStrategy(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestSourcingClientPollResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/results/task-42", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"status": "completed",
			"candidates": [
				{"candidate_id": "cand-1", "profile": {"name": "Ada"}},
				{"candidate_id": "cand-2", "profile": {"name": "Grace"}}
			]
		}`))
	}))
	defer server.Close()

	client := external.NewSourcingClient(server.URL, testTimeout, logger.NewNop())

	result, err := client.PollResults(context.Background(), "task-42")
	require.NoError(t, err)
	assert.Equal(t, external.TaskStatusCompleted, result.Status)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "cand-1", result.Candidates[0].CandidateID)
}

func TestUpstreamErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer server.Close()

	client := external.NewSourcingClient(server.URL, testTimeout, logger.NewNop())

	_, err := client.ExecuteStrategy(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.Equal(t, "sourcing", upstream.Service)
	assert.Contains(t, upstream.Body, "maintenance")
}
