package handlers

import (
	"net/http"

	"reflow_oven/internal/models"

	"github.com/gin-gonic/gin"
)

// ProfileRequest is the create/update payload. Waypoints are
// [time_s, temp_c, power_pct] triples.
type ProfileRequest struct {
	Name      string            `json:"name" binding:"required" example:"Lead-free"`
	Waypoints []models.Waypoint `json:"waypoints" binding:"required" swaggertype:"array,number"`
}

// @Summary      List profiles
// @Tags         profiles
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "profiles"
// @Router       /api/v1/profiles [get]
func (h *Handler) listProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.services.Profiles.List()})
}

// @Summary      Get a profile
// @Tags         profiles
// @Produce      json
// @Param        id   path      string  true  "Profile id"
// @Success      200  {object}  models.Profile
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/profiles/{id} [get]
func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.services.Profiles.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, "profile_get_failed", err, "profile_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Create a profile
// @Description  Waypoints are sorted by time; a [0,0,0] waypoint is added when none starts at 0.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        body  body      ProfileRequest  true  "Profile"
// @Success      201   {object}  models.Profile
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/profiles [post]
// @Security     BearerAuth
func (h *Handler) createProfile(c *gin.Context) {
	var req ProfileRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	p, err := h.services.Profiles.Create(c.Request.Context(), req.Name, req.Waypoints)
	if err != nil {
		h.respondError(c, "profile_create_failed", err, "name", req.Name)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary      Update a profile
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        id    path      string          true  "Profile id"
// @Param        body  body      ProfileRequest  true  "Profile"
// @Success      200   {object}  models.Profile
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/profiles/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateProfile(c *gin.Context) {
	var req ProfileRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	id := c.Param("id")
	p, err := h.services.Profiles.Update(c.Request.Context(), id, req.Name, req.Waypoints)
	if err != nil {
		h.respondError(c, "profile_update_failed", err, "profile_id", id)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Delete a profile
// @Description  Fails with 409 while the active run uses the profile.
// @Tags         profiles
// @Produce      json
// @Param        id   path      string  true  "Profile id"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/profiles/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteProfile(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Profiles.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, "profile_delete_failed", err, "profile_id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
}

// @Summary      Select the profile used by the next run
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        body  body      idRequest  true  "Profile id"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/profiles/select [post]
// @Security     BearerAuth
func (h *Handler) selectProfile(c *gin.Context) {
	var req idRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.Profiles.Select(c.Request.Context(), req.ID); err != nil {
		h.respondError(c, "profile_select_failed", err, "profile_id", req.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "selected", "profiles": h.services.Profiles.List()})
}
