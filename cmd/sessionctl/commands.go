package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/jbsession/pkg/session"
)

const maxWhoAmIBodyBytes = 1 << 20

var errMissingPassword = errors.New("sessionctl.missing_password")

func newLoginCommand(settings *viper.Viper) *cobra.Command {
	command := &cobra.Command{
		Use:   "login <email>",
		Short: "Obtain an access token and store it in the user scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			password := env.settings.GetString("password")
			if password == "" {
				return fmt.Errorf("sessionctl.login: %w: use --password or SESSIONCTL_PASSWORD", errMissingPassword)
			}
			if err := env.client.Login(command.Context(), arguments[0], password); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(command.OutOrStdout(), "logged in as %s\n", arguments[0])
			return nil
		},
	}
	command.Flags().String("password", "", "Account password")
	_ = settings.BindPFlag("password", command.Flags().Lookup("password"))
	return command
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored access token and clear user scoped data",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			logoutErr := env.client.Logout(command.Context())
			if logoutErr != nil {
				color.New(color.FgYellow).Fprintf(command.ErrOrStderr(), "local session cleared; %v\n", logoutErr)
				return logoutErr
			}
			color.New(color.FgGreen).Fprintln(command.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an access token is stored",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			if env.client.IsAuthenticated() {
				color.New(color.FgGreen).Fprintln(command.OutOrStdout(), "authenticated")
				return nil
			}
			color.New(color.FgRed).Fprintln(command.OutOrStdout(), "not authenticated")
			return nil
		},
	}
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Call the server's /me endpoint with the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			endpoint := strings.TrimRight(env.settings.GetString("server_url"), "/") + "/me"
			request, err := http.NewRequestWithContext(command.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return fmt.Errorf("sessionctl.whoami: %w", err)
			}
			response, err := env.client.HTTPClient().Do(request)
			if err != nil {
				return fmt.Errorf("sessionctl.whoami: %w", err)
			}
			defer response.Body.Close()
			body, err := io.ReadAll(io.LimitReader(response.Body, maxWhoAmIBodyBytes))
			if err != nil {
				return fmt.Errorf("sessionctl.whoami: %w", err)
			}
			if response.StatusCode != http.StatusOK {
				return fmt.Errorf("sessionctl.whoami: unexpected status %d", response.StatusCode)
			}
			return writeValue(command.OutOrStdout(), env.format, parseValueArgument(string(body)))
		},
	}
}

func newGetCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			scopes, err := scopesFlag(command)
			if err != nil {
				return err
			}
			value, found, err := env.store.Get(arguments[0], scopes...)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("sessionctl.get: key %q not found", arguments[0])
			}
			return writeValue(command.OutOrStdout(), env.format, value)
		},
	}
	command.Flags().String("scope", "", "Scope to read (user or local); empty searches user then local")
	return command
}

func newSetCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a JSON value (or plain string) under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			scopeName, _ := command.Flags().GetString("scope")
			scope, err := session.ParseScope(scopeName)
			if err != nil {
				return err
			}
			options := []session.SetOption{session.InScope(scope)}
			if expires, _ := command.Flags().GetString("expires"); strings.TrimSpace(expires) != "" {
				options = append(options, session.ExpiresAt(expires))
			}
			return env.store.Set(arguments[0], parseValueArgument(arguments[1]), options...)
		},
	}
	command.Flags().String("scope", string(session.ScopeUser), "Scope to write (user or local)")
	command.Flags().String("expires", "", "Absolute expiration date (e.g. 2030-01-02T15:04:05Z)")
	return command
}

func newRemoveCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove key from the selected scopes",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			scopes, err := scopesFlag(command)
			if err != nil {
				return err
			}
			return env.store.Remove(arguments[0], scopes...)
		},
	}
	command.Flags().String("scope", "", "Scope to remove from (user or local); empty removes from both")
	return command
}

func newListCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "List stored keys per scope",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			scopes, err := scopesFlag(command)
			if err != nil {
				return err
			}
			if len(scopes) == 0 {
				scopes = session.Scopes()
			}
			listing := make(map[string][]string, len(scopes))
			for _, scope := range scopes {
				keys, err := env.store.Keys(scope)
				if err != nil {
					return err
				}
				listing[string(scope)] = keys
			}
			return writeValue(command.OutOrStdout(), env.format, listing)
		},
	}
	command.Flags().String("scope", "", "Scope to list (user or local); empty lists both")
	return command
}

func newDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Remove every session entry in every scope",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			env, err := environmentFrom(command)
			if err != nil {
				return err
			}
			if err := env.store.Destroy(); err != nil {
				return err
			}
			color.New(color.FgYellow).Fprintln(command.OutOrStdout(), "session destroyed")
			return nil
		},
	}
}

func scopesFlag(command *cobra.Command) ([]session.Scope, error) {
	scopeName, _ := command.Flags().GetString("scope")
	if strings.TrimSpace(scopeName) == "" {
		return nil, nil
	}
	scope, err := session.ParseScope(scopeName)
	if err != nil {
		return nil, err
	}
	return []session.Scope{scope}, nil
}
