package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/jbsession/pkg/authclient"
	"github.com/tyemirov/jbsession/pkg/session"
	"go.uber.org/zap"
)

const (
	defaultDatabaseURL = "sqlite://sessionctl.db"
	defaultServerURL   = "http://localhost:8080"

	configCodeInvalidOutput    = "config.invalid_output"
	configCodeMissingServerURL = "config.missing_server_url"
	configCodeUninitialized    = "config.uninitialized_environment"
)

// backendHandle pairs a session backend with its cleanup.
type backendHandle struct {
	backend session.Backend
	close   func() error
}

var openBackend = func(ctx context.Context, databaseURL string) (backendHandle, error) {
	parsed, parseErr := url.Parse(databaseURL)
	if parseErr == nil && (strings.EqualFold(parsed.Scheme, "redis") || strings.EqualFold(parsed.Scheme, "rediss")) {
		redisBackend, err := session.NewRedisBackend(ctx, databaseURL)
		if err != nil {
			return backendHandle{}, err
		}
		return backendHandle{backend: redisBackend, close: redisBackend.Close}, nil
	}
	databaseBackend, err := session.NewDatabaseBackend(ctx, databaseURL)
	if err != nil {
		return backendHandle{}, err
	}
	return backendHandle{backend: databaseBackend, close: databaseBackend.Close}, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

type contextKey string

const environmentContextKey contextKey = "environment"

// environment carries the objects shared by every subcommand.
type environment struct {
	settings *viper.Viper
	logger   *zap.Logger
	store    *session.Store
	client   *authclient.Client
	format   outputFormat
	handle   backendHandle
}

func newRootCommand() *cobra.Command {
	settings := viper.New()
	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and manage a persistent jb-session store and its access token",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return prepareEnvironment(command, settings)
		},
		PersistentPostRunE: func(command *cobra.Command, arguments []string) error {
			return closeEnvironment(command)
		},
	}

	rootCmd.PersistentFlags().String("database_url", defaultDatabaseURL, "Session storage URL (sqlite://, postgres:// or redis://)")
	rootCmd.PersistentFlags().String("server_url", defaultServerURL, "Base URL of the access token server")
	rootCmd.PersistentFlags().String("output", string(outputJSON), "Output format: json or yaml")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable development logging to stderr")

	_ = settings.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = settings.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server_url"))
	_ = settings.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = settings.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	settings.SetEnvPrefix("SESSIONCTL")
	settings.AutomaticEnv()

	rootCmd.AddCommand(
		newLoginCommand(settings),
		newLogoutCommand(),
		newStatusCommand(),
		newWhoAmICommand(),
		newGetCommand(),
		newSetCommand(),
		newRemoveCommand(),
		newListCommand(),
		newDestroyCommand(),
	)
	return rootCmd
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func prepareEnvironment(command *cobra.Command, settings *viper.Viper) error {
	format, formatErr := parseOutputFormat(settings.GetString("output"))
	if formatErr != nil {
		return formatErr
	}
	serverURL := strings.TrimSpace(settings.GetString("server_url"))
	if serverURL == "" {
		return configError(configCodeMissingServerURL, "server_url must be provided")
	}

	logger := zap.NewNop()
	if settings.GetBool("verbose") {
		developmentLogger, loggerErr := zap.NewDevelopment()
		if loggerErr != nil {
			return loggerErr
		}
		logger = developmentLogger
	}

	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}
	handle, openErr := openBackend(commandContext, settings.GetString("database_url"))
	if openErr != nil {
		return openErr
	}
	store, storeErr := session.New(session.Config{Backend: handle.backend, Logger: logger})
	if storeErr != nil {
		_ = handle.close()
		return storeErr
	}
	client, clientErr := authclient.New(authclient.Config{BaseURL: serverURL, Store: store, Logger: logger})
	if clientErr != nil {
		_ = handle.close()
		return clientErr
	}

	command.SetContext(context.WithValue(commandContext, environmentContextKey, &environment{
		settings: settings,
		logger:   logger,
		store:    store,
		client:   client,
		format:   format,
		handle:   handle,
	}))
	return nil
}

func closeEnvironment(command *cobra.Command) error {
	env, err := environmentFrom(command)
	if err != nil {
		return nil
	}
	_ = env.logger.Sync()
	return env.handle.close()
}

func environmentFrom(command *cobra.Command) (*environment, error) {
	commandContext := command.Context()
	if commandContext == nil {
		return nil, configError(configCodeUninitialized, "environment not prepared; PersistentPreRunE must execute before RunE")
	}
	env, ok := commandContext.Value(environmentContextKey).(*environment)
	if !ok || env == nil {
		return nil, configError(configCodeUninitialized, "environment not prepared; PersistentPreRunE must execute before RunE")
	}
	return env, nil
}
