package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/domain/dispatch"
	"github.com/mikan-dev/multibox/internal/domain/guard"
	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Debugger lists launcher- and target-related processes for diagnosis
type Debugger interface {
	DebugProcesses(ctx context.Context) ([]types.ProcessInfo, error)
}

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	registry   *registry.Manager
	dispatcher *dispatch.Dispatcher
	guard      *guard.Guard
	debugger   Debugger
	logger     *logging.Logger
}

// NewHandlers creates HTTP handlers
func NewHandlers(reg *registry.Manager, d *dispatch.Dispatcher, g *guard.Guard, dbg Debugger, logger *logging.Logger) *Handlers {
	return &Handlers{
		registry:   reg,
		dispatcher: d,
		guard:      g,
		debugger:   dbg,
		logger:     logger,
	}
}

// CreateProfileRequest is the add-profile payload
type CreateProfileRequest struct {
	Name string `json:"name"`
}

// CreateProfile adds a new managed profile
func (h *Handlers) CreateProfile(c *gin.Context) {
	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	inst := h.registry.Add(req.Name)
	h.logger.Info("profile added",
		zap.Int("profile", inst.ProfileID), zap.String("name", inst.DisplayName))
	c.JSON(http.StatusCreated, inst)
}

// DeleteProfile removes a profile. Removing a running instance requires
// force=true; the confirmation dialog is the caller's concern, the API only
// refuses unforced removal.
func (h *Handlers) DeleteProfile(c *gin.Context) {
	id, ok := h.profileID(c)
	if !ok {
		return
	}

	inst, found := h.registry.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	if inst.Status == types.StatusRunning && c.Query("force") != "true" {
		c.JSON(http.StatusConflict, gin.H{
			"error": "profile is running; pass force=true to remove it anyway",
		})
		return
	}

	h.registry.Remove(id)
	h.logger.Info("profile removed", zap.Int("profile", id))
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

// ListProfiles returns all instances in insertion order
func (h *Handlers) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.registry.List()})
}

// OpenProfile launches the profile's external process
func (h *Handlers) OpenProfile(c *gin.Context) {
	id, ok := h.profileID(c)
	if !ok {
		return
	}
	h.command(c, id, h.dispatcher.Open)
}

// CloseProfile stops the profile's external process
func (h *Handlers) CloseProfile(c *gin.Context) {
	id, ok := h.profileID(c)
	if !ok {
		return
	}
	h.command(c, id, h.dispatcher.Close)
}

// ToggleProfile opens or closes based on current status
func (h *Handlers) ToggleProfile(c *gin.Context) {
	id, ok := h.profileID(c)
	if !ok {
		return
	}
	h.command(c, id, h.dispatcher.Toggle)
}

// GuardStatus reports the cached exclusivity state
func (h *Handlers) GuardStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exclusive_tool_active": h.guard.Active()})
}

// DebugProcesses lists related OS processes
func (h *Handlers) DebugProcesses(c *gin.Context) {
	procs, err := h.debugger.DebugProcesses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processes": procs})
}

// Health is a liveness probe
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// command runs a dispatcher command and maps its error to a status code
func (h *Handlers) command(c *gin.Context, id int, fn func(context.Context, int) error) {
	err := fn(c.Request.Context(), id)
	if err == nil {
		inst, _ := h.registry.Get(id)
		c.JSON(http.StatusOK, inst)
		return
	}

	switch {
	case errors.Is(err, types.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, types.ErrLauncherUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) profileID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile id"})
		return 0, false
	}
	return id, true
}
