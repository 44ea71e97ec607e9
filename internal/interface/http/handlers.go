// Package http implements the REST API of the learning engine.
package http

import (
	"github.com/olgagaga/web3-learning/internal/application/command"
	"github.com/olgagaga/web3-learning/internal/application/query"
	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
	"github.com/olgagaga/web3-learning/pkg/logger"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Learning Engine API",
		"version":     "v1",
		"description": "Goal commitments, escrow tutoring, scholarship rounds, and signed attestations",
		"endpoints": map[string]string{
			"health":       "/health",
			"progress":     "/api/v1/progress",
			"commitments":  "/api/v1/commitments",
			"sessions":     "/api/v1/sessions",
			"rounds":       "/api/v1/rounds/open",
			"attestations": "/api/v1/attestations",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST & ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads and decodes a JSON request body.
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps a domain error onto an HTTP status and JSON body.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Warn("request failed",
		logger.String("op", op),
		logger.String("request_id", getRequestID(r.Context())),
		logger.Err(err),
	)

	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsInvalidTransition(err):
		writeJSONErrorWithDetails(w, http.StatusConflict, "invalid_transition",
			"The aggregate is not in a state that allows this operation", err.Error())
	case shared.IsConflict(err):
		writeJSONErrorWithDetails(w, http.StatusConflict, "conflict",
			"The request conflicts with current state, retry with fresh data", err.Error())
	case shared.IsEligibility(err):
		writeJSONErrorWithDetails(w, http.StatusUnprocessableEntity, "not_eligible",
			"The request does not meet the eligibility rules", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case shared.IsExternalSettlement(err):
		writeJSONErrorWithDetails(w, http.StatusBadGateway, "settlement_error",
			"The settlement layer rejected or failed the operation", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type reportProgressRequest struct {
	LearnerID     string    `json:"learner_id"`
	Kind          string    `json:"kind"`
	Magnitude     int64     `json:"magnitude"`
	SourceID      string    `json:"source_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// handleReportProgress handles POST /api/v1/progress
func (s *Server) handleReportProgress(w http.ResponseWriter, r *http.Request) {
	var req reportProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" || req.SourceID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id and source_id are required")
		return
	}
	if req.Magnitude <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "magnitude must be positive")
		return
	}

	result, err := s.deps.ReportProgressHandler.Handle(r.Context(), command.ReportProgressCommand{
		LearnerID:     req.LearnerID,
		Kind:          req.Kind,
		Magnitude:     req.Magnitude,
		SourceID:      req.SourceID,
		OccurredAt:    req.OccurredAt,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.writeDomainError(w, r, "report_progress", err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// handleGetProgressSummary handles GET /api/v1/learners/{id}/progress
func (s *Server) handleGetProgressSummary(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetProgressSummaryHandler.Handle(r.Context(), query.GetProgressSummaryQuery{
		LearnerID:  learnerID,
		WindowDays: getQueryParamInt(r, "days", 30),
	})
	if err != nil {
		s.writeDomainError(w, r, "get_progress_summary", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetTimeline handles GET /api/v1/learners/{id}/timeline
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetTimelineHandler.Handle(r.Context(), query.GetTimelineQuery{
		LearnerID:  learnerID,
		Kind:       getQueryParam(r, "kind", ""),
		WindowDays: getQueryParamInt(r, "days", 30),
	})
	if err != nil {
		s.writeDomainError(w, r, "get_timeline", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetBadges handles GET /api/v1/learners/{id}/badges
func (s *Server) handleGetBadges(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetBadgesHandler.Handle(r.Context(), query.GetBadgesQuery{
		LearnerID: learnerID,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_badges", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMITMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createCommitmentRequest struct {
	LearnerID     string `json:"learner_id"`
	GoalType      string `json:"goal_type"`
	EventKind     string `json:"event_kind,omitempty"`
	Target        int64  `json:"target"`
	Stake         string `json:"stake"`
	DurationHours int    `json:"duration_hours"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type commitmentResponse struct {
	CommitmentID string    `json:"commitment_id"`
	Status       string    `json:"status"`
	GoalType     string    `json:"goal_type"`
	EventKind    string    `json:"event_kind"`
	Target       int64     `json:"target"`
	Stake        string    `json:"stake"`
	Deadline     time.Time `json:"deadline"`
	SettlementID string    `json:"settlement_id,omitempty"`
}

func toCommitmentResponse(c *commitment.Commitment, settlementID string) commitmentResponse {
	return commitmentResponse{
		CommitmentID: c.ID,
		Status:       c.Status.String(),
		GoalType:     c.GoalType.String(),
		EventKind:    c.EventKind.String(),
		Target:       c.Target,
		Stake:        c.Stake.String(),
		Deadline:     c.Deadline,
		SettlementID: settlementID,
	}
}

// handleCreateCommitment handles POST /api/v1/commitments
func (s *Server) handleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req createCommitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" || req.GoalType == "" || req.Stake == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id, goal_type and stake are required")
		return
	}
	if req.Target <= 0 || req.DurationHours <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "target and duration_hours must be positive")
		return
	}

	result, err := s.deps.CreateCommitmentHandler.Handle(r.Context(), command.CreateCommitmentCommand{
		LearnerID:     req.LearnerID,
		GoalType:      req.GoalType,
		EventKind:     req.EventKind,
		Target:        req.Target,
		Stake:         req.Stake,
		Duration:      time.Duration(req.DurationHours) * time.Hour,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.writeDomainError(w, r, "create_commitment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommitmentResponse(result.Commitment, result.SettlementID))
}

// handleGetCommitment handles GET /api/v1/commitments/{id}
func (s *Server) handleGetCommitment(w http.ResponseWriter, r *http.Request) {
	commitmentID := r.PathValue("id")
	if commitmentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Commitment ID is required")
		return
	}

	result, err := s.deps.GetCommitmentHandler.Get(r.Context(), query.GetCommitmentQuery{
		CommitmentID: commitmentID,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_commitment", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListCommitments handles GET /api/v1/learners/{id}/commitments
func (s *Server) handleListCommitments(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetCommitmentHandler.List(r.Context(), query.ListCommitmentsQuery{
		LearnerID: learnerID,
		Offset:    getQueryParamInt(r, "offset", 0),
		Limit:     getQueryParamInt(r, "limit", 20),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_commitments", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type claimRewardRequest struct {
	LearnerID string `json:"learner_id"`
}

// handleClaimReward handles POST /api/v1/commitments/{id}/claim
func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	commitmentID := r.PathValue("id")
	if commitmentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Commitment ID is required")
		return
	}

	var req claimRewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id is required")
		return
	}

	result, err := s.deps.ClaimRewardHandler.Handle(r.Context(), command.ClaimRewardCommand{
		CommitmentID: commitmentID,
		LearnerID:    req.LearnerID,
	})
	if err != nil {
		s.writeDomainError(w, r, "claim_reward", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome":    result.Outcome,
		"payout":     result.Payout.String(),
		"tx_ref":     string(result.TxRef),
		"claimed_at": result.ClaimedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ESCROW SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createSessionRequest struct {
	LearnerID     string `json:"learner_id"`
	TutorID       string `json:"tutor_id"`
	Topic         string `json:"topic,omitempty"`
	Amount        string `json:"amount"`
	FundsTxRef    string `json:"funds_tx_ref"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Disposition   string `json:"disposition"`
	LearnerID     string `json:"learner_id"`
	TutorID       string `json:"tutor_id"`
	Topic         string `json:"topic,omitempty"`
	Amount        string `json:"amount"`
	TutorPayout   string `json:"tutor_payout,omitempty"`
	LearnerRefund string `json:"learner_refund,omitempty"`
	PlatformFee   string `json:"platform_fee,omitempty"`
}

func toSessionResponse(session *escrow.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:   session.ID,
		Status:      session.Status.String(),
		Disposition: string(session.Disposition),
		LearnerID:   string(session.LearnerID),
		TutorID:     string(session.TutorID),
		Topic:       session.Topic,
		Amount:      session.Amount.String(),
	}
	if !session.TutorPayout.IsZero() {
		resp.TutorPayout = session.TutorPayout.String()
	}
	if !session.LearnerRefund.IsZero() {
		resp.LearnerRefund = session.LearnerRefund.String()
	}
	if !session.PlatformFee.IsZero() {
		resp.PlatformFee = session.PlatformFee.String()
	}
	return resp
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" || req.TutorID == "" || req.Amount == "" || req.FundsTxRef == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request",
			"learner_id, tutor_id, amount and funds_tx_ref are required")
		return
	}

	result, err := s.deps.SessionHandler.CreateSession(r.Context(), command.CreateSessionCommand{
		LearnerID:     req.LearnerID,
		TutorID:       req.TutorID,
		Topic:         req.Topic,
		Amount:        req.Amount,
		FundsTxRef:    req.FundsTxRef,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		s.writeDomainError(w, r, "create_session", err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(result.Session))
}

// handleGetSession handles GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Session ID is required")
		return
	}

	result, err := s.deps.GetSessionHandler.Get(r.Context(), query.GetSessionQuery{
		SessionID: sessionID,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_session", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListSessions handles GET /api/v1/learners/{id}/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetSessionHandler.List(r.Context(), query.ListSessionsQuery{
		LearnerID: learnerID,
		AsTutor:   getQueryParamBool(r, "as_tutor"),
		Offset:    getQueryParamInt(r, "offset", 0),
		Limit:     getQueryParamInt(r, "limit", 20),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type sessionActorRequest struct {
	TutorID   string `json:"tutor_id,omitempty"`
	LearnerID string `json:"learner_id,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// handleAcceptSession handles POST /api/v1/sessions/{id}/accept
func (s *Server) handleAcceptSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req sessionActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.TutorID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "tutor_id is required")
		return
	}

	result, err := s.deps.SessionHandler.AcceptSession(r.Context(), sessionID, req.TutorID)
	if err != nil {
		s.writeDomainError(w, r, "accept_session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

// handleSubmitWork handles POST /api/v1/sessions/{id}/submit
func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req sessionActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.TutorID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "tutor_id is required")
		return
	}

	result, err := s.deps.SessionHandler.SubmitWork(r.Context(), sessionID, req.TutorID, req.Summary)
	if err != nil {
		s.writeDomainError(w, r, "submit_work", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

// handleVerifySession handles POST /api/v1/sessions/{id}/verify
func (s *Server) handleVerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req sessionActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id is required")
		return
	}

	result, err := s.deps.SessionHandler.VerifySession(r.Context(), sessionID, req.LearnerID)
	if err != nil {
		s.writeDomainError(w, r, "verify_session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

// handleDisputeSession handles POST /api/v1/sessions/{id}/dispute
func (s *Server) handleDisputeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req sessionActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" || req.Reason == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id and reason are required")
		return
	}

	result, err := s.deps.SessionHandler.DisputeSession(r.Context(), sessionID, req.LearnerID, req.Reason)
	if err != nil {
		s.writeDomainError(w, r, "dispute_session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

// handleCancelSession handles POST /api/v1/sessions/{id}/cancel
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req sessionActorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id is required")
		return
	}

	result, err := s.deps.SessionHandler.CancelSession(r.Context(), sessionID, req.LearnerID)
	if err != nil {
		s.writeDomainError(w, r, "cancel_session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

type resolveDisputeRequest struct {
	Decision   string `json:"decision"`
	TutorShare string `json:"tutor_share,omitempty"`
}

// handleResolveDispute handles POST /api/v1/sessions/{id}/resolve
func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req resolveDisputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.Decision == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "decision is required")
		return
	}

	tutorShare := decimal.Zero
	if req.TutorShare != "" {
		parsed, err := decimal.NewFromString(req.TutorShare)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "tutor_share must be a decimal string")
			return
		}
		tutorShare = parsed
	}

	result, err := s.deps.SessionHandler.ResolveDispute(r.Context(), sessionID, escrow.Decision(req.Decision), tutorShare)
	if err != nil {
		s.writeDomainError(w, r, "resolve_dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(result.Session))
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type openRoundRequest struct {
	SeedPool string    `json:"seed_pool"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

func toRoundResponse(round *scholarship.Round) map[string]interface{} {
	return map[string]interface{}{
		"round_id":    round.ID,
		"status":      string(round.Status),
		"pool":        round.Pool.String(),
		"window_from": round.Window.From,
		"window_to":   round.Window.To,
	}
}

// handleOpenRound handles POST /api/v1/rounds
func (s *Server) handleOpenRound(w http.ResponseWriter, r *http.Request) {
	var req openRoundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	round, err := s.deps.ScholarshipHandler.OpenRound(r.Context(), command.OpenRoundCommand{
		SeedPool: req.SeedPool,
		Window:   shared.TimeRange{From: req.From, To: req.To},
	})
	if err != nil {
		s.writeDomainError(w, r, "open_round", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoundResponse(round))
}

// handleGetOpenRound handles GET /api/v1/rounds/open
func (s *Server) handleGetOpenRound(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetRoundHandler.GetRound(r.Context(), query.GetRoundQuery{})
	if err != nil {
		s.writeDomainError(w, r, "get_open_round", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetRound handles GET /api/v1/rounds/{id}
func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Round ID is required")
		return
	}

	result, err := s.deps.GetRoundHandler.GetRound(r.Context(), query.GetRoundQuery{RoundID: roundID})
	if err != nil {
		s.writeDomainError(w, r, "get_round", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListRoundClaims handles GET /api/v1/rounds/{id}/claims
func (s *Server) handleListRoundClaims(w http.ResponseWriter, r *http.Request) {
	roundID := r.PathValue("id")
	if roundID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Round ID is required")
		return
	}

	result, err := s.deps.GetRoundHandler.ListClaims(r.Context(), roundID)
	if err != nil {
		s.writeDomainError(w, r, "list_round_claims", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type closeRoundRequest struct {
	Force bool `json:"force,omitempty"`
}

// handleCloseRound handles POST /api/v1/rounds/close
func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	var req closeRoundRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
			return
		}
	}

	result, err := s.deps.ScholarshipHandler.CloseRound(r.Context(), command.CloseRoundCommand{
		Force: req.Force,
		Now:   time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, r, "close_round", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"round_id":      result.RoundID,
		"distributed":   result.Distributed.String(),
		"rollover":      result.Rollover.String(),
		"rewarded":      result.Rewarded,
		"next_round_id": result.NextRoundID,
	})
}

type submitClaimRequest struct {
	LearnerID          string `json:"learner_id"`
	ImprovementPercent string `json:"improvement_percent"`
	TimeframeDays      int    `json:"timeframe_days"`
	Evidence           string `json:"evidence,omitempty"`
}

func toClaimResponse(claim *scholarship.Claim) map[string]interface{} {
	resp := map[string]interface{}{
		"claim_id":            claim.ID,
		"round_id":            claim.RoundID,
		"learner_id":          string(claim.LearnerID),
		"improvement_percent": claim.ImprovementPercent.String(),
		"timeframe_days":      claim.TimeframeDays,
		"status":              string(claim.Status),
	}
	if !claim.Reward.IsZero() {
		resp["reward"] = claim.Reward.String()
	}
	return resp
}

// handleSubmitClaim handles POST /api/v1/claims
func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req submitClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.LearnerID == "" || req.ImprovementPercent == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "learner_id and improvement_percent are required")
		return
	}

	claim, err := s.deps.ScholarshipHandler.SubmitClaim(r.Context(), command.SubmitClaimCommand{
		LearnerID:          req.LearnerID,
		ImprovementPercent: req.ImprovementPercent,
		TimeframeDays:      req.TimeframeDays,
		Evidence:           req.Evidence,
	})
	if err != nil {
		s.writeDomainError(w, r, "submit_claim", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClaimResponse(claim))
}

// handleGetClaim handles GET /api/v1/claims/{id}
func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claimID := r.PathValue("id")
	if claimID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Claim ID is required")
		return
	}

	result, err := s.deps.GetRoundHandler.GetClaim(r.Context(), query.GetClaimQuery{ClaimID: claimID})
	if err != nil {
		s.writeDomainError(w, r, "get_claim", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyClaim handles POST /api/v1/claims/{id}/verify
func (s *Server) handleVerifyClaim(w http.ResponseWriter, r *http.Request) {
	claimID := r.PathValue("id")
	if claimID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Claim ID is required")
		return
	}

	claim, err := s.deps.ScholarshipHandler.VerifyClaim(r.Context(), command.VerifyClaimCommand{ClaimID: claimID})
	if err != nil {
		s.writeDomainError(w, r, "verify_claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(claim))
}

type donateRequest struct {
	DonorID string `json:"donor_id"`
	Amount  string `json:"amount"`
	TxRef   string `json:"tx_ref"`
}

// handleDonate handles POST /api/v1/claims/{id}/donations
func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	claimID := r.PathValue("id")
	var req donateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.DonorID == "" || req.Amount == "" || req.TxRef == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "donor_id, amount and tx_ref are required")
		return
	}

	donation, err := s.deps.ScholarshipHandler.Donate(r.Context(), command.DonateCommand{
		ClaimID: claimID,
		DonorID: req.DonorID,
		Amount:  req.Amount,
		TxRef:   req.TxRef,
	})
	if err != nil {
		s.writeDomainError(w, r, "donate", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"donation_id": donation.ID,
		"round_id":    donation.RoundID,
		"claim_id":    donation.ClaimID,
		"donor_id":    string(donation.DonorID),
		"amount":      donation.Amount.String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func toSettlementResponse(st *settlement.Settlement) map[string]interface{} {
	resp := map[string]interface{}{
		"settlement_id": st.ID,
		"kind":          st.Kind.String(),
		"subject_id":    st.SubjectID,
		"status":        st.Status.String(),
		"amount":        st.Amount.String(),
		"attempts":      st.Attempts,
	}
	if st.TxRef != "" {
		resp["tx_ref"] = string(st.TxRef)
	}
	if st.LastError != "" {
		resp["last_error"] = st.LastError
	}
	return resp
}

// handleGetSettlement handles GET /api/v1/settlements/{id}
func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	settlementID := r.PathValue("id")
	if settlementID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Settlement ID is required")
		return
	}

	result, err := s.deps.GetSettlementHandler.Get(r.Context(), query.GetSettlementQuery{
		SettlementID: settlementID,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListFailedSettlements handles GET /api/v1/settlements/failed
func (s *Server) handleListFailedSettlements(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetSettlementHandler.ListFailed(r.Context(), getQueryParamInt(r, "limit", 50))
	if err != nil {
		s.writeDomainError(w, r, "list_failed_settlements", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRetrySettlement handles POST /api/v1/settlements/{id}/retry
func (s *Server) handleRetrySettlement(w http.ResponseWriter, r *http.Request) {
	settlementID := r.PathValue("id")
	if settlementID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Settlement ID is required")
		return
	}

	result, err := s.deps.RetrySettlementHandler.Handle(r.Context(), command.RetrySettlementCommand{
		SettlementID: settlementID,
	})
	if err != nil {
		s.writeDomainError(w, r, "retry_settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(result))
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTESTATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type issueAttestationRequest struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   string `json:"subject_id"`
}

// handleIssueAttestation handles POST /api/v1/attestations
func (s *Server) handleIssueAttestation(w http.ResponseWriter, r *http.Request) {
	var req issueAttestationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}
	if req.SubjectKind == "" || req.SubjectID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "subject_kind and subject_id are required")
		return
	}

	a, err := s.deps.IssueAttestationHandler.Handle(r.Context(), command.IssueAttestationCommand{
		SubjectKind: req.SubjectKind,
		SubjectID:   req.SubjectID,
	})
	if err != nil {
		s.writeDomainError(w, r, "issue_attestation", err)
		return
	}

	view, err := s.deps.GetAttestationHandler.Get(r.Context(), query.GetAttestationQuery{AttestationID: a.ID})
	if err != nil {
		s.writeDomainError(w, r, "issue_attestation", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetAttestation handles GET /api/v1/attestations/{id}
func (s *Server) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	attestationID := r.PathValue("id")
	if attestationID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Attestation ID is required")
		return
	}

	result, err := s.deps.GetAttestationHandler.Get(r.Context(), query.GetAttestationQuery{
		AttestationID: attestationID,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_attestation", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListAttestations handles GET /api/v1/learners/{id}/attestations
func (s *Server) handleListAttestations(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("id")
	if learnerID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Learner ID is required")
		return
	}

	result, err := s.deps.GetAttestationHandler.List(r.Context(), query.ListAttestationsQuery{
		LearnerID: learnerID,
		Kind:      getQueryParam(r, "kind", ""),
		Offset:    getQueryParamInt(r, "offset", 0),
		Limit:     getQueryParamInt(r, "limit", 20),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_attestations", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
