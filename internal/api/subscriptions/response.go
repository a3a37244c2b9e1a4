package subscriptions

import (
	"net/http"

	domain "salon-billing/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
)

var statusByCode = map[domain.Code]int{
	domain.CodeAuthRequired:          http.StatusUnauthorized,
	domain.CodeUnauthorized:          http.StatusForbidden,
	domain.CodeNotFound:              http.StatusNotFound,
	domain.CodeValidation:            http.StatusBadRequest,
	domain.CodeInvalidDate:           http.StatusBadRequest,
	domain.CodeDuplicateSubscription: http.StatusConflict,
	domain.CodeInvalidStatus:         http.StatusConflict,
	domain.CodeNotPaused:             http.StatusConflict,
	domain.CodeNotCancelling:         http.StatusConflict,
	domain.CodeOperationFailed:       http.StatusInternalServerError,
}

// HTTPStatus maps a result code onto a response status.
func HTTPStatus(code domain.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Respond writes err as a failed result, or data as a successful one.
func Respond(c *gin.Context, okStatus int, data any, message string, err error) {
	if err != nil {
		res := domain.Fail(err)
		c.JSON(HTTPStatus(res.Code), res)
		return
	}
	c.JSON(okStatus, domain.OK(data, message))
}
