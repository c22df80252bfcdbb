package tokenserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/jbsession/pkg/tokenvalidator"
	"go.uber.org/zap"
)

// RequireAccessToken validates the bearer token, rejects revoked tokens, and injects claims
// under tokenvalidator.DefaultContextKey.
func (server *Server) RequireAccessToken() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, validateErr := server.validator.ValidateRequest(contextGin.Request)
		if validateErr != nil {
			server.metrics.Increment(metricAccessDenied)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if _, _, storeErr := server.tokens.Validate(contextGin, claims.GetTokenID()); storeErr != nil {
			server.metrics.Increment(metricAccessDenied)
			server.logger.Debug("access token rejected",
				zap.String("code", "token.access.rejected"),
				zap.Error(storeErr))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(tokenvalidator.DefaultContextKey, claims)
		contextGin.Next()
	}
}
