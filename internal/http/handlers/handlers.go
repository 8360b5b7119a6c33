package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/frontdesk/backend/internal/agent"
	"github.com/frontdesk/backend/internal/calls"
	"github.com/frontdesk/backend/internal/db"
	"github.com/frontdesk/backend/internal/models"
	"github.com/frontdesk/backend/internal/notify"
)

type Handler struct {
	Store     *db.Store
	Agent     *agent.Agent
	Calls     *calls.Registry
	Hub       *notify.Hub
	Upgrader  websocket.Upgrader
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type CallSimulationRequest struct {
	CustomerID    string `json:"customer_id" validate:"required"`
	CustomerPhone string `json:"customer_phone" validate:"required"`
	Question      string `json:"question" validate:"required"`
	CustomerName  string `json:"customer_name"`
}

// @Summary Simulate an incoming call
// @Description Run a customer question through the escalation engine
// @Tags calls
// @Accept json
// @Produce json
// @Success 200 {object} models.AgentResult
// @Failure 400 {object} map[string]any
// @Router /api/calls/simulate [post]
func (h *Handler) SimulateCall(c *gin.Context) {
	var req CallSimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	callID := h.Calls.Begin(req.CustomerID, req.CustomerPhone, req.CustomerName)
	_ = h.Calls.AddTranscript(callID, models.SpeakerCustomer, req.Question)

	result, err := h.Agent.Answer(c.Request.Context(), req.Question, req.CustomerID, &req.CustomerPhone, map[string]any{"call_id": callID})
	if err != nil {
		_ = h.Calls.End(callID)
		writeError(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to record help request", err.Error())
		return
	}

	_ = h.Calls.AddTranscript(callID, models.SpeakerAgent, result.Response)
	_ = h.Calls.End(callID)

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ActiveCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_calls": h.Calls.Active()})
}

func (h *Handler) CallLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"call_logs": h.Calls.Logs(limit)})
}

type HelpRequestCreate struct {
	Question      string         `json:"question" validate:"required"`
	CustomerID    string         `json:"customer_id" validate:"required"`
	CustomerPhone *string        `json:"customer_phone"`
	Context       map[string]any `json:"context"`
}

// @Summary Create a help request
// @Description Open a pending help request directly, without a call
// @Tags requests
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	var req HelpRequestCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	contextJSON, _ := json.Marshal(req.Context)
	id, err := h.Store.CreateHelpRequest(c.Request.Context(), req.Question, req.CustomerID, req.CustomerPhone, contextJSON)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to create help request", err.Error())
		return
	}

	h.Hub.Publish(agent.EventNewHelpRequest, map[string]any{
		"request_id":  id,
		"question":    req.Question,
		"customer_id": req.CustomerID,
	})
	c.JSON(http.StatusOK, gin.H{"request_id": id, "status": "created"})
}

// @Summary List pending help requests
// @Tags requests
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/requests/pending [get]
func (h *Handler) PendingRequests(c *gin.Context) {
	requests, err := h.Store.ListPendingRequests(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list pending requests", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
}

func (h *Handler) AllRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	requests, err := h.Store.ListRequests(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list requests", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests, "count": len(requests)})
}

func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.Store.GetHelpRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get request", err.Error())
		return
	}
	c.JSON(http.StatusOK, req)
}

type SupervisorResponse struct {
	SupervisorAnswer string `json:"supervisor_answer" validate:"required"`
	SupervisorID     string `json:"supervisor_id"`
}

// @Summary Supervisor responds to a help request
// @Description Resolves the request, learns the answer, and follows up with the customer
// @Tags requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/requests/{id}/respond [post]
func (h *Handler) RespondRequest(c *gin.Context) {
	var req SupervisorResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if req.SupervisorID == "" {
		req.SupervisorID = "supervisor_1"
	}

	err := h.Agent.Resolve(c.Request.Context(), c.Param("id"), req.SupervisorAnswer, req.SupervisorID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Request not found", nil)
	case errors.Is(err, models.ErrInvalidState):
		writeError(c, http.StatusConflict, "INVALID_STATE", "Request is not pending", nil)
	case err != nil:
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to resolve request", err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Response processed and customer notified"})
	}
}

type KnowledgeCreate struct {
	Question string   `json:"question" validate:"required"`
	Answer   string   `json:"answer" validate:"required"`
	Source   string   `json:"source"`
	Tags     []string `json:"tags"`
}

func (h *Handler) AddKnowledge(c *gin.Context) {
	var req KnowledgeCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if req.Source == "" {
		req.Source = "supervisor"
	}

	id, err := h.Store.AddKnowledge(c.Request.Context(), req.Question, req.Answer, req.Source, req.Tags)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to add knowledge", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge_id": id, "status": "created"})
}

type KnowledgeUpdate struct {
	Answer string `json:"answer" validate:"required"`
}

func (h *Handler) UpdateKnowledge(c *gin.Context) {
	var req KnowledgeUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	err := h.Store.UpdateKnowledgeAnswer(c.Request.Context(), c.Param("id"), req.Answer)
	if errors.Is(err, models.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Knowledge entry not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to update knowledge", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) ListKnowledge(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.Store.ListKnowledge(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list knowledge", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge": entries, "count": len(entries)})
}

func (h *Handler) SearchKnowledge(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	results, err := h.Store.SearchKnowledge(c.Request.Context(), query)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to search knowledge", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

// @Summary System statistics
// @Description Request counts by status, knowledge base size and active calls
// @Tags stats
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.Store.CountRequestsByStatus(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to count requests", err.Error())
		return
	}
	knowledgeSize, err := h.Store.CountKnowledge(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to count knowledge", err.Error())
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total_requests":      total,
		"pending_requests":    counts[models.StatusPending],
		"resolved_requests":   counts[models.StatusResolved],
		"unresolved_requests": counts[models.StatusUnresolved],
		"knowledge_base_size": knowledgeSize,
		"active_calls":        len(h.Calls.Active()),
	})
}

// WS upgrades the connection and registers it with the hub. Inbound
// messages only serve as heartbeats.
func (h *Handler) WS(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.Hub.Add(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Hub.Remove(conn)
			return
		}
		if err := h.Hub.Reply(conn, gin.H{"type": "heartbeat", "status": "ok"}); err != nil {
			h.Hub.Remove(conn)
			return
		}
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
