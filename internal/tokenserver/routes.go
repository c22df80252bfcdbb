package tokenserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/jbsession/pkg/tokenvalidator"
	"go.uber.org/zap"
)

var (
	errMissingSigningKey  = errors.New("tokenserver.missing_signing_key")
	errInvalidTokenTTL    = errors.New("tokenserver.invalid_token_ttl")
	errMissingCredentials = errors.New("tokenserver.missing_credential_store")
	errMissingTokenStore  = errors.New("tokenserver.missing_token_store")
)

// Dependencies groups the collaborators used by the token routes.
type Dependencies struct {
	Config      ServerConfig
	Credentials CredentialStore
	Tokens      AccessTokenStore
	Metrics     MetricsRecorder
	Logger      *zap.Logger
	Clock       Clock
}

// Server serves the access token endpoints.
type Server struct {
	configuration ServerConfig
	credentials   CredentialStore
	tokens        AccessTokenStore
	validator     *tokenvalidator.Validator
	metrics       MetricsRecorder
	logger        *zap.Logger
	clock         Clock
}

// NewServer validates the dependencies and applies defaults.
func NewServer(dependencies Dependencies) (*Server, error) {
	configuration := dependencies.Config
	if len(configuration.SigningKey) == 0 {
		return nil, errMissingSigningKey
	}
	if configuration.TokenTTL <= 0 {
		return nil, errInvalidTokenTTL
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		configuration.Issuer = DefaultIssuer
	}
	if dependencies.Credentials == nil {
		return nil, errMissingCredentials
	}
	if dependencies.Tokens == nil {
		return nil, errMissingTokenStore
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	validator, validatorErr := tokenvalidator.New(tokenvalidator.Config{
		SigningKey: configuration.SigningKey,
		Issuer:     configuration.Issuer,
		Clock:      clock,
	})
	if validatorErr != nil {
		return nil, fmt.Errorf("tokenserver.validator: %w", validatorErr)
	}
	return &Server{
		configuration: configuration,
		credentials:   dependencies.Credentials,
		tokens:        dependencies.Tokens,
		validator:     validator,
		metrics:       metrics,
		logger:        logger,
		clock:         clock,
	}, nil
}

// TokenRouteMethods lists the HTTP methods MountTokenRoutes registers.
func TokenRouteMethods() []string {
	return []string{http.MethodPost, http.MethodDelete}
}

// MountTokenRoutes registers POST /accessToken and DELETE /accessToken/:token.
func (server *Server) MountTokenRoutes(router gin.IRouter) {
	router.POST("/accessToken", server.handleLogin)
	router.DELETE("/accessToken/:token", server.handleRevoke)
}

// loginRequest binds from form posts (urlencoded or multipart) and from JSON bodies.
type loginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (server *Server) handleLogin(contextGin *gin.Context) {
	var inbound loginRequest
	if err := contextGin.ShouldBind(&inbound); err != nil || strings.TrimSpace(inbound.Email) == "" {
		server.metrics.Increment(metricLoginFailure)
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	applicationUserID, userRoles, authErr := server.credentials.Authenticate(contextGin, inbound.Email, inbound.Password)
	if authErr != nil {
		if errors.Is(authErr, ErrInvalidCredentials) {
			server.metrics.Increment(metricLoginFailure)
			server.logger.Info("login rejected",
				zap.String("code", "token.login.invalid_credentials"),
				zap.String("user_email", inbound.Email))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		server.metrics.Increment(metricLoginError)
		server.logger.Error("credential lookup failed",
			zap.String("code", "token.login.credential_error"),
			zap.Error(authErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	expiresUnix := server.clock.Now().Add(server.configuration.TokenTTL).Unix()
	tokenID, issueErr := server.tokens.Issue(contextGin, applicationUserID, expiresUnix)
	if issueErr != nil {
		server.metrics.Increment(metricLoginError)
		server.logger.Error("token issue failed",
			zap.String("code", "token.login.issue_error"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	signed, _, mintErr := MintAccessToken(server.clock, server.configuration, tokenID, applicationUserID, inbound.Email, userRoles)
	if mintErr != nil {
		server.metrics.Increment(metricLoginError)
		server.logger.Error("token mint failed",
			zap.String("code", "token.login.mint_error"),
			zap.Error(mintErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	server.metrics.Increment(metricLoginSuccess)
	server.logger.Info("token issued",
		zap.String("code", "token.login.success"),
		zap.String("user_id", applicationUserID))
	contextGin.JSON(http.StatusCreated, gin.H{"token": signed})
}

func (server *Server) handleRevoke(contextGin *gin.Context) {
	claims, validateErr := server.validator.ValidateToken(contextGin.Param("token"))
	if validateErr != nil {
		server.metrics.Increment(metricRevokeInvalid)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	revokeErr := server.tokens.Revoke(contextGin, claims.GetTokenID())
	switch {
	case revokeErr == nil:
		server.metrics.Increment(metricRevokeSuccess)
		server.logger.Info("token revoked",
			zap.String("code", "token.revoke.success"),
			zap.String("user_id", claims.GetUserID()))
		contextGin.Status(http.StatusOK)
	case errors.Is(revokeErr, ErrAccessTokenAlreadyRevoked):
		server.metrics.Increment(metricRevokeRepeat)
		contextGin.Status(http.StatusOK)
	case errors.Is(revokeErr, ErrAccessTokenNotFound):
		server.metrics.Increment(metricRevokeNotFound)
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown_token"})
	default:
		server.logger.Error("token revoke failed",
			zap.String("code", "token.revoke.error"),
			zap.Error(revokeErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
	}
}
