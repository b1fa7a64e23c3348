package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/pkg/errors"
	"github.com/charlesng35/marketsync/pkg/response"
	"github.com/charlesng35/marketsync/pkg/validator"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SyncHandler exposes the write-behind queue and connectivity state.
type SyncHandler struct {
	engine *engine.Engine
}

// NewSyncHandler constructs a sync handler.
func NewSyncHandler(e *engine.Engine) (*SyncHandler, error) {
	if e == nil {
		return nil, errors.New("ENGINE_UNAVAILABLE", "engine is required", http.StatusInternalServerError)
	}
	return &SyncHandler{engine: e}, nil
}

// Status returns connectivity, OfflineMode, backlog and last full sync.
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.engine.Coordinator.Status(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Drain runs a drain pass immediately.
func (h *SyncHandler) Drain(c *gin.Context) {
	result, err := h.engine.Coordinator.SyncNow(requestContext(c))
	if err != nil {
		response.Error(c, translateError(err))
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Pending lists queued operations in drain order.
func (h *SyncHandler) Pending(c *gin.Context) {
	limit := listLimit(c)
	ops, err := h.engine.Queue.Pending(requestContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	backlog, err := h.engine.Queue.Backlog(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ops, &response.Meta{Limit: limit, Total: backlog})
}

// DeadLetters lists discarded operations.
func (h *SyncHandler) DeadLetters(c *gin.Context) {
	limit := listLimit(c)
	letters, err := h.engine.Queue.DeadLetters(requestContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, letters, &response.Meta{Limit: limit, Total: int64(len(letters))})
}

// Requeue moves a dead letter back onto the queue.
func (h *SyncHandler) Requeue(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, errors.NewBadRequest("invalid dead letter id"))
		return
	}

	op, err := h.engine.Queue.Requeue(requestContext(c), id)
	if err != nil {
		response.Error(c, translateError(err))
		return
	}
	response.Success(c, http.StatusOK, op)
}

type mutationRequest struct {
	Action string         `json:"action" validate:"required,oneof=create update delete"`
	Table  string         `json:"table" validate:"required,tablename"`
	ID     string         `json:"id" validate:"max=64"`
	Record map[string]any `json:"record"`
}

// Mutate applies a local change and enqueues it for the remote.
func (h *SyncHandler) Mutate(c *gin.Context) {
	var body mutationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errors.NewBadRequest("invalid mutation payload"))
		return
	}
	if err := validator.ValidateStruct(body); err != nil {
		response.Error(c, err)
		return
	}

	op, err := h.engine.Mutate(requestContext(c), engine.Mutation{
		Action: models.SyncAction(body.Action),
		Table:  body.Table,
		ID:     body.ID,
		Record: body.Record,
	})
	if err != nil {
		response.Error(c, translateError(err))
		return
	}
	response.Success(c, http.StatusAccepted, op)
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
