package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentpipe/sourcing/internal/domain"
	"github.com/talentpipe/sourcing/internal/ledger"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/scoring"
	"github.com/talentpipe/sourcing/internal/workflow"
)

// Handlers provides the HTTP handlers for the sourcing API.
type Handlers struct {
	worker       *scoring.Worker
	dispatcher   *scoring.Dispatcher
	orchestrator *workflow.Orchestrator
	aggregator   *scoring.Aggregator
	ledger       *ledger.Ledger
	logger       logger.Logger
	version      string
}

// NewHandlers creates a handlers instance.
func NewHandlers(
	worker *scoring.Worker,
	dispatcher *scoring.Dispatcher,
	orchestrator *workflow.Orchestrator,
	aggregator *scoring.Aggregator,
	creditLedger *ledger.Ledger,
	log logger.Logger,
	version string,
) *Handlers {
	return &Handlers{
		worker:       worker,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		aggregator:   aggregator,
		ledger:       creditLedger,
		logger:       log,
		version:      version,
	}
}

// ScoreCandidate handles POST /api/v1/scoring/candidate — one queue-delivered
// scoring job for a single candidate.
func (h *Handlers) ScoreCandidate(c *gin.Context) {
	var job scoring.Job
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job payload"})
		return
	}
	if job.SearchID == "" || job.SearchCandidateID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "searchId and searchCandidateId are required"})
		return
	}

	result, err := h.worker.Process(c.Request.Context(), &job)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"score":   result.Score,
		"scored":  result.Progress.Scored,
		"total":   result.Progress.Total,
	})
}

// DispatchScoring handles POST /api/v1/workflow/scoring — fans out scoring
// jobs for every unscored candidate of a search.
func (h *Handlers) DispatchScoring(c *gin.Context) {
	var req workflow.ScoringDispatchJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if req.SearchID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "searchId is required"})
		return
	}

	queued, err := h.dispatcher.Dispatch(c.Request.Context(), req.SearchID, req.Parallelism)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"queued":   queued,
		"searchId": req.SearchID,
	})
}

// RunStrategy handles POST /api/v1/workflow/strategy — one queue-delivered
// strategy execution.
func (h *Handlers) RunStrategy(c *gin.Context) {
	var job workflow.StrategyJob
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job payload"})
		return
	}
	if job.StrategyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategyId is required"})
		return
	}

	if err := h.orchestrator.RunStrategy(c.Request.Context(), job.StrategyID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "strategyId": job.StrategyID})
}

type launchRequest struct {
	Strategies []workflow.StrategyPlan `json:"strategies"`
}

// LaunchStrategies handles POST /api/v1/searches/:id/strategies — plans and
// enqueues the sourcing strategies for a search.
func (h *Handlers) LaunchStrategies(c *gin.Context) {
	searchID := c.Param("id")

	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	created, err := h.orchestrator.LaunchStrategies(c.Request.Context(), searchID, req.Strategies)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":    true,
		"searchId":   searchID,
		"strategies": created,
	})
}

// GetProgress handles GET /api/v1/searches/:id/progress.
func (h *Handlers) GetProgress(c *gin.Context) {
	progress, err := h.aggregator.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

type consumeRequest struct {
	OrganizationID  string `json:"organizationId"`
	UserID          string `json:"userId"`
	Amount          int    `json:"amount"`
	CreditType      string `json:"creditType"`
	RelatedEntityID string `json:"relatedEntityId"`
	Description     string `json:"description"`
}

// ConsumeCredits handles POST /api/v1/credits/consume — a credit-debiting
// action such as a profile reveal.
func (h *Handlers) ConsumeCredits(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	txn, err := h.ledger.DeductCredits(c.Request.Context(), &domain.DeductRequest{
		OrganizationID:  req.OrganizationID,
		UserID:          req.UserID,
		Amount:          req.Amount,
		CreditType:      req.CreditType,
		RelatedEntityID: req.RelatedEntityID,
		Description:     req.Description,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": txn})
}

// GetCreditsUsage handles GET /api/v1/credits/usage?organizationId=&from=&to=.
func (h *Handlers) GetCreditsUsage(c *gin.Context) {
	organizationID := c.Query("organizationId")
	if organizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId is required"})
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}

	usage, err := h.ledger.GetCreditsUsageForPeriod(c.Request.Context(), organizationID, from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"organizationId": organizationID,
		"usage":          usage,
		"from":           from,
		"to":             to,
	})
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sourcing",
		"version": h.version,
	})
}
