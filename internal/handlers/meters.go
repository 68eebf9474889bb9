package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meterbridge/internal/coordinator"
)

const (
	errNoSnapshot    = "no snapshot yet; first refresh has not completed"
	errUnknownMeter  = "unknown meter id"
	errInvalidID     = "invalid meter id"
	errReauthCloud   = "cloud rejected credentials; reauthentication required"
	errCloudUnavail  = "cloud temporarily unavailable; try again later"
	errForceRefresh  = "force refresh failed"
	statusRefreshed  = "refreshed"
)

// @Summary      Bridge health
// @Tags         system
// @Produce      json
// @Success      200  {object}  service.Health
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Bridge.Health())
}

// @Summary      Current snapshot
// @Description  The full meter map as of the last successful cycle.
// @Tags         meters
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/snapshot [get]
// @Security     BearerAuth
func (h *Handler) getSnapshot(c *gin.Context) {
	snap := h.services.Bridge.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoSnapshot})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary      List meters
// @Tags         meters
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, meters"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/meters [get]
// @Security     BearerAuth
func (h *Handler) listMeters(c *gin.Context) {
	if h.services.Bridge.Snapshot() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errNoSnapshot})
		return
	}
	meters := h.services.Bridge.Meters()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(meters),
		"meters": meters,
	})
}

// @Summary      Get one meter
// @Tags         meters
// @Produce      json
// @Param        id  path  int  true  "Meter ID"
// @Success      200  {object}  models.Meter
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/meters/{id} [get]
// @Security     BearerAuth
func (h *Handler) getMeter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidID})
		return
	}
	m, ok := h.services.Bridge.Meter(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errUnknownMeter})
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Force refresh
// @Description  Re-runs full discovery immediately, bypassing the cached
// @Description  snapshot, then resumes the normal cadence.
// @Tags         meters
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, health"
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/refresh [post]
// @Security     BearerAuth
func (h *Handler) forceRefresh(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Bridge.ForceRefresh(ctx); err != nil {
		if h.log != nil {
			h.log.Errorw("force_refresh_failed", "err", err)
		}
		switch {
		case errors.Is(err, coordinator.ErrReauthRequired):
			c.JSON(http.StatusBadGateway, gin.H{"error": errReauthCloud})
		case errors.Is(err, coordinator.ErrRetryLater):
			c.JSON(http.StatusBadGateway, gin.H{"error": errCloudUnavail})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": errForceRefresh})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusRefreshed,
		"health": h.services.Bridge.Health(),
	})
}
