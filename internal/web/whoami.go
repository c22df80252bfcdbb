package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/jbsession/pkg/tokenvalidator"
	"go.uber.org/zap"
)

// ProfileStore resolves user profiles by application user id.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, applicationUserID string) (UserProfile, error)
}

type authClaims interface {
	GetUserID() string
	GetUserRoles() []string
	GetExpiresAt() time.Time
}

// HandleWhoAmI resolves the authenticated user's profile payload.
func HandleWhoAmI(logger *zap.Logger, users ProfileStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		claimsValue, found := contextGin.Get(tokenvalidator.DefaultContextKey)
		if !found {
			logger.Warn("missing auth claims on context",
				zap.String("code", "api.me.missing_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := claimsValue.(authClaims)
		if !ok || claims == nil || claims.GetUserID() == "" {
			logger.Warn("invalid auth claims on context",
				zap.String("code", "api.me.invalid_claims"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		profile, profileErr := users.GetUserProfile(contextGin, claims.GetUserID())
		if profileErr != nil {
			if errors.Is(profileErr, ErrUserProfileNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.me.profile_missing"),
					zap.String("user_id", claims.GetUserID()))
				contextGin.AbortWithStatus(http.StatusNotFound)
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.me.profile_error"),
				zap.String("user_id", claims.GetUserID()),
				zap.Error(profileErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		contextGin.JSON(http.StatusOK, gin.H{
			"user_id":    claims.GetUserID(),
			"user_email": profile.Email,
			"roles":      profile.Roles,
			"expires":    claims.GetExpiresAt(),
		})
	}
}
