package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/api"
)

func newLoginCommand(a *app) *cobra.Command {
	var username, password string
	var register bool
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			if register {
				if _, err := a.client.Register(ctx, api.Credentials{Username: username, Password: password, Email: email}); err != nil {
					return err
				}
			}

			s, err := a.client.Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (token expires %s)\n", s.User.Username, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account first")
	cmd.Flags().StringVar(&email, "email", "", "Email for --register")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored token and clear the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), u)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) roles=%s\n", u.Username, u.ID, strings.Join(u.Roles, ","))
			if claims, err := a.client.Claims(); err == nil && claims.ExpiresAt != nil {
				if now := time.Now(); claims.Expired(now) {
					fmt.Fprintln(out, "token expired, run finctl login")
				} else {
					fmt.Fprintf(out, "token expires in %s\n", claims.ExpiresAt.Sub(now).Round(time.Minute))
				}
			}
			return nil
		},
	}
}
