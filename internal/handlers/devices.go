package handlers

import (
	"errors"
	"net/http"

	"reflow_oven/internal/device"

	"github.com/gin-gonic/gin"
)

// idRequest selects a device or profile by id.
type idRequest struct {
	ID string `json:"id" binding:"required" example:"simulator_1"`
}

// @Summary      List ovens
// @Description  Discovered devices in discovery order; the simulator is listed first.
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "devices"
// @Router       /api/v1/devices [get]
func (h *Handler) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": h.services.Devices.List()})
}

// @Summary      Select the oven used by the next run
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        body  body      idRequest  true  "Device id"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/devices/select [post]
// @Security     BearerAuth
func (h *Handler) selectDevice(c *gin.Context) {
	var req idRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.Devices.Select(c.Request.Context(), req.ID); err != nil {
		h.respondError(c, "device_select_failed", err, "device_id", req.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "selected", "devices": h.services.Devices.List()})
}

// @Summary      Rescan serial ports
// @Description  Rate limited. Driver errors are reported as warnings next to the refreshed list.
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]string
// @Router       /api/v1/devices/rescan [post]
// @Security     BearerAuth
func (h *Handler) rescanDevices(c *gin.Context) {
	resp := gin.H{}
	if err := h.services.Devices.Rescan(c.Request.Context()); err != nil {
		if errors.Is(err, device.ErrRescanThrottled) {
			h.respondError(c, "device_rescan_throttled", err)
			return
		}
		h.log.Warnw("device_rescan_partial", "err", err)
		resp["warning"] = err.Error()
	}
	resp["devices"] = h.services.Devices.List()
	c.JSON(http.StatusOK, resp)
}
