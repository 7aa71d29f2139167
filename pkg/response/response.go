package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lifeline/pkg/errors"
)

type Body struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: 0, Message: message, Data: data})
}

func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Body{Code: status, Message: message})
}

// FailWithError maps the engine's error taxonomy onto HTTP statuses.
func FailWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeForbidden:
		status = http.StatusForbidden
	case errors.CodePendingApproval:
		status = http.StatusForbidden
	case errors.CodeInvalidCredentials, errors.CodeInvalidOrExpiredCode:
		status = http.StatusUnauthorized
	case errors.CodeAlreadyResolved:
		status = http.StatusConflict
	}
	c.JSON(status, Body{Code: errors.GetCode(err), Message: errors.GetMessage(err)})
}
