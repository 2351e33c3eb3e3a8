package handlers

import (
	"context"
	"net/http"
	"strconv"

	"reflow_oven/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	statusOK      = "ok"
	statusStarted = "started"
	statusStopped = "stopped"
	statusReset   = "reset"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// runTransition executes a run command and answers with the resulting status.
func (h *Handler) runTransition(c *gin.Context, status, logKey string, op func(ctx context.Context) error) {
	if err := op(c.Request.Context()); err != nil {
		h.respondError(c, logKey, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "run": h.services.Monitoring.Status()})
}

// @Summary      Start a run
// @Description  Uses the selected oven and profile.
// @Tags         run
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, run"
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/run/start [post]
// @Security     BearerAuth
func (h *Handler) startRun(c *gin.Context) {
	h.runTransition(c, statusStarted, "run_start_failed", h.services.RunControl.Start)
}

// @Summary      Stop the run
// @Description  Commands 0% power. Samples stay available until the next start.
// @Tags         run
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/run/stop [post]
// @Security     BearerAuth
func (h *Handler) stopRun(c *gin.Context) {
	h.runTransition(c, statusStopped, "run_stop_failed", h.services.RunControl.Stop)
}

// @Summary      Acknowledge a fault
// @Tags         run
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/run/reset [post]
// @Security     BearerAuth
func (h *Handler) resetRun(c *gin.Context) {
	h.runTransition(c, statusReset, "run_reset_failed", h.services.RunControl.Reset)
}

// @Summary      Run status
// @Tags         run
// @Produce      json
// @Success      200  {object}  models.RunStatus
// @Router       /api/v1/run/status [get]
func (h *Handler) runStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Status())
}

// @Summary      Current targets
// @Description  Last computed targets, or the selected profile's start values while idle.
// @Tags         run
// @Produce      json
// @Success      200  {object}  models.Targets
// @Router       /api/v1/run/targets [get]
func (h *Handler) runTargets(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.CurrentTargets())
}

// @Summary      Samples of the current run
// @Description  With since, only samples strictly after that elapsed time are returned.
// @Tags         run
// @Produce      json
// @Param        since  query     number  false  "Elapsed seconds"
// @Success      200    {object}  map[string]interface{}  "samples, count"
// @Failure      400    {object}  map[string]string
// @Router       /api/v1/run/samples [get]
func (h *Handler) runSamples(c *gin.Context) {
	since := -1.0
	if qs := c.Query("since"); qs != "" {
		v, err := strconv.ParseFloat(qs, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'since'; use elapsed seconds"})
			return
		}
		since = v
	}
	samples := h.services.Monitoring.SamplesSince(since)
	if samples == nil {
		samples = []models.Sample{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(samples), "samples": samples})
}
