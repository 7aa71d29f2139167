package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lifeline/internal/models"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/response"
)

// Coordinates are pointers so a legitimate 0.0 still passes the
// required check.
type raiseSOSRequest struct {
	Message   string   `json:"message"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// RaiseSOS creates an alert for the authenticated user. ?silent=true
// records the alert without notifying anyone.
func (h *Handlers) RaiseSOS(c *gin.Context) {
	var req raiseSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	var creator models.User
	if err := h.db.First(&creator, "id = ?", currentUserID(c)).Error; err != nil {
		response.FailWithError(c, errors.NotFound("user"))
		return
	}

	silent := c.Query("silent") == "true"
	sos, err := h.sos.Raise(c.Request.Context(), &creator, req.Message, *req.Latitude, *req.Longitude, silent)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "sos raised", sosView(sos))
}

func (h *Handlers) GetSOS(c *gin.Context) {
	sos, err := h.sos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "ok", sosView(sos))
}

func (h *Handlers) AcceptSOS(c *gin.Context) {
	sos, err := h.sos.Accept(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "sos accepted", sosView(sos))
}

func (h *Handlers) ResolveSOS(c *gin.Context) {
	sos, err := h.sos.Resolve(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "sos resolved", sosView(sos))
}

// AcknowledgeSOS marks the caller's alert notification read and sends the
// creator a read receipt. Deliberately tolerant: no matching unread
// notification is not an error.
func (h *Handlers) AcknowledgeSOS(c *gin.Context) {
	if err := h.notifications.Acknowledge(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "acknowledged", nil)
}

func sosView(sos *models.SOS) gin.H {
	responders := make([]gin.H, 0, len(sos.Responders))
	for _, r := range sos.Responders {
		responders = append(responders, gin.H{
			"userId":     r.UserID,
			"acceptedAt": r.CreatedAt,
		})
	}
	return gin.H{
		"id":         sos.ID,
		"userId":     sos.UserID,
		"message":    sos.Message,
		"latitude":   sos.Latitude,
		"longitude":  sos.Longitude,
		"isResolved": sos.IsResolved,
		"resolvedAt": sos.ResolvedAt,
		"createdAt":  sos.CreatedAt,
		"responders": responders,
	}
}
