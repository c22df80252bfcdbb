package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/jbsession/internal/tokenserver"
	"github.com/tyemirov/jbsession/internal/web"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tokenserver",
		Short:   "Reference access token service: password login, bearer JWTs, and token revocation",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("jwt_issuer", tokenserver.DefaultIssuer, "Issuer embedded in access tokens")
	rootCmd.Flags().Duration("token_ttl", time.Hour, "Access token TTL")
	rootCmd.Flags().String("database_url", "", "Database URL for issued tokens (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().StringSlice("users", []string{}, "Accepted credentials as email=password pairs")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for browser clients on other origins")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("jwt_issuer", rootCmd.Flags().Lookup("jwt_issuer"))
	_ = viper.BindPFlag("token_ttl", rootCmd.Flags().Lookup("token_ttl"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("users", rootCmd.Flags().Lookup("users"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("TOKENSERVER")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidTokenTTL         = "config.invalid_token_ttl"
	configCodeMissingUsers            = "config.missing_users"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeInvalidUsers            = "config.invalid_users"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the token settings from viper.
func LoadServerConfig() (tokenserver.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return tokenserver.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	tokenTTL := viper.GetDuration("token_ttl")
	if tokenTTL <= 0 {
		return tokenserver.ServerConfig{}, configError(configCodeInvalidTokenTTL, "token_ttl must be greater than zero")
	}

	issuer := viper.GetString("jwt_issuer")
	if issuer == "" {
		issuer = tokenserver.DefaultIssuer
	}

	return tokenserver.ServerConfig{
		SigningKey: []byte(jwtSigningKey),
		Issuer:     issuer,
		TokenTTL:   tokenTTL,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(tokenserver.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	userSpecs := viper.GetStringSlice("users")

	if len(userSpecs) == 0 {
		return configError(configCodeMissingUsers, "at least one email=password pair must be provided via users")
	}
	userStore := web.NewInMemoryUsers()
	if loadErr := userStore.LoadUserSpecs(userSpecs); loadErr != nil {
		return fmt.Errorf("%s: %w", configCodeInvalidUsers, loadErr)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, web.CORSPolicy{
			Origins: corsAllowedOrigins,
			Methods: append(tokenserver.TokenRouteMethods(), http.MethodGet),
		})
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	clock := tokenserver.NewSystemClock()
	var tokenStore tokenserver.AccessTokenStore
	if databaseURL != "" {
		persistentStore, storeErr := tokenserver.NewDatabaseAccessTokenStore(context.Background(), databaseURL, clock)
		if storeErr != nil {
			return storeErr
		}
		defer func() { _ = persistentStore.Close() }()
		tokenStore = persistentStore
		logger.Info("using persistent access token store", zap.String("driver", persistentStore.Driver()))
	} else {
		tokenStore = tokenserver.NewMemoryAccessTokenStore(clock)
		logger.Info("using in-memory access token store")
	}

	metricsRecorder := tokenserver.NewCounterMetrics()
	tokenServer, serverErr := tokenserver.NewServer(tokenserver.Dependencies{
		Config:      serverConfig,
		Credentials: userStore,
		Tokens:      tokenStore,
		Metrics:     metricsRecorder,
		Logger:      logger,
		Clock:       clock,
	})
	if serverErr != nil {
		return serverErr
	}
	tokenServer.MountTokenRoutes(router)
	router.GET("/me", tokenServer.RequireAccessToken(), web.HandleWhoAmI(logger, userStore))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	logger.Info("token counters", zap.Any("counts", metricsRecorder.Snapshot()))
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			// route pattern, so revoked tokens never reach the log
			zap.String("path", contextGin.FullPath()),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
