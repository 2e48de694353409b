package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/pkg/leadapi"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the backend login session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the backend's Google OAuth flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend(cfg.API.BaseURL, false)
		if err != nil {
			return err
		}
		_, err = login(cmd.Context(), b.api, cmd.OutOrStdout())
		return err
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the backend login session",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend(cfg.API.BaseURL, false)
		if err != nil {
			return err
		}
		if err := b.api.Logout(cmd.Context()); err != nil {
			return eris.Wrap(err, "logout")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backend login session",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend(cfg.API.BaseURL, false)
		if err != nil {
			return err
		}
		info, err := b.api.Session(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "session")
		}
		formatSession(cmd.OutOrStdout(), info)
		return nil
	},
}

// login prints the OAuth URL and waits until the backend reports the session logged in.
func login(ctx context.Context, api leadapi.Client, out io.Writer) (*model.SessionInfo, error) {
	fmt.Fprintf(out, "Open this URL in a browser to log in:\n  %s\n", api.LoginURL())
	fmt.Fprintln(out, "Waiting for login...")

	info, err := leadapi.WaitForLogin(ctx, api,
		leadapi.WithPollInterval(cfg.Auth.PollInterval()),
		leadapi.WithPollTimeout(cfg.Auth.LoginTimeout()),
	)
	if err != nil {
		return nil, eris.Wrap(err, "login")
	}
	formatSession(out, info)
	return info, nil
}

func formatSession(out io.Writer, info *model.SessionInfo) {
	if info == nil || !info.LoggedIn {
		fmt.Fprintln(out, "Not logged in.")
		return
	}
	if info.Profile == nil || info.Profile.DisplayName() == "" {
		fmt.Fprintln(out, "Logged in.")
		return
	}
	fmt.Fprintf(out, "Logged in as %s\n", info.Profile.DisplayName())
}

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
