package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	marketerrors "github.com/tokenmarket/marketd/pkg/errors"
)

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Code     uint16            `json:"code"`
	Name     string            `json:"name"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newErrorResponse(err marketerrors.Error) ErrorResponse {
	return ErrorResponse{
		Code:     err.Code(),
		Name:     err.CodeName(),
		Message:  err.Error(),
		Metadata: err.Metadata(),
	}
}

// ErrorConverter renders the last error attached to the context by a handler.
// Structured errors keep their code, anything else becomes INTERNAL_ERROR.
func ErrorConverter() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var structuredErr marketerrors.Error
		if !errors.As(last.Err, &structuredErr) {
			structuredErr = marketerrors.INTERNAL_ERROR.Wrap(last.Err)
		}
		if structuredErr.Code() == marketerrors.INTERNAL_ERROR.Code {
			structuredErr.Log().WithField("path", c.FullPath()).Error(structuredErr.Error())
		}

		status := runtime.HTTPStatusFromCode(structuredErr.GrpcCode())
		if status == http.StatusOK {
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, newErrorResponse(structuredErr))
	}
}
