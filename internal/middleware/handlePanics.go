package middleware

import (
	"net/http"

	"github.com/dfryer1193/cropfeed/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func HandlePanics() gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		evt := log.Error().Str("path", c.Request.URL.Path).Str("requestID", RequestID(c))
		if err, ok := recovered.(error); ok {
			evt = evt.Err(err)
		} else {
			evt = evt.Interface("panic", recovered)
		}
		evt.Msg("Recovered from panic")

		c.AbortWithStatusJSON(http.StatusInternalServerError, api.Error("internal server error"))
	}
}
