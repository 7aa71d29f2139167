package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"Lifeline/pkg/response"
)

func (h *Handlers) ListNotifications(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))
	list, err := h.notifications.ListForRecipient(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "ok", list)
}

func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	n, err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "marked read", n)
}

func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "marked all read", gin.H{"updated": updated})
}
