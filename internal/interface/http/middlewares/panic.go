// panic.go recovers from panics in handlers and turns them into INTERNAL_ERROR
// responses instead of crashing the server. Stack traces are logged.
package middlewares

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tokenmarket/marketd/pkg/errors"
)

var somethingWentWrong = errors.INTERNAL_ERROR.New("something went wrong")

func PanicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic-recovery middleware recovered from panic: %v", r)
				log.Errorf("stack trace: %v", string(debug.Stack()))
				c.AbortWithStatusJSON(
					http.StatusInternalServerError, newErrorResponse(somethingWentWrong),
				)
			}
		}()

		c.Next()
	}
}
