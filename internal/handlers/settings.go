package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/marketsync/internal/connectivity"
	"github.com/charlesng35/marketsync/pkg/errors"
	"github.com/charlesng35/marketsync/pkg/response"
)

// SettingsHandler toggles OfflineMode and relays platform connectivity signals.
type SettingsHandler struct {
	coordinator *connectivity.Coordinator
}

// NewSettingsHandler constructs a settings handler.
func NewSettingsHandler(co *connectivity.Coordinator) (*SettingsHandler, error) {
	if co == nil {
		return nil, errors.New("COORDINATOR_UNAVAILABLE", "coordinator is required", http.StatusInternalServerError)
	}
	return &SettingsHandler{coordinator: co}, nil
}

type offlineModeRequest struct {
	OfflineMode *bool `json:"offline_mode"`
}

// SetOfflineMode persists the user OfflineMode toggle.
func (h *SettingsHandler) SetOfflineMode(c *gin.Context) {
	var body offlineModeRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.OfflineMode == nil {
		response.Error(c, errors.NewBadRequest("offline_mode is required"))
		return
	}

	if err := h.coordinator.SetOfflineMode(requestContext(c), *body.OfflineMode); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"online":       h.coordinator.Online(),
		"offline_mode": h.coordinator.OfflineMode(),
	})
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

// SetConnectivity applies a platform online/offline signal.
func (h *SettingsHandler) SetConnectivity(c *gin.Context) {
	var body connectivityRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Online == nil {
		response.Error(c, errors.NewBadRequest("online is required"))
		return
	}

	h.coordinator.SetOnline(*body.Online)
	response.Success(c, http.StatusOK, gin.H{
		"online":       h.coordinator.Online(),
		"offline_mode": h.coordinator.OfflineMode(),
	})
}
