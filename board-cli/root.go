package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/123123eeqweq/omocrm/authgate"
	"github.com/123123eeqweq/omocrm/client"
	"github.com/123123eeqweq/omocrm/domain"
)

const requestTimeout = 30 * time.Second

var errSessionExpired = errors.New("session expired, run `login` again")

// App holds what the commands need to reach the server and the local state.
type App struct {
	APIURL        string
	StatePath     string
	Policy        domain.AuthPolicy
	Logger        *log.Logger
	IsInteractive func() bool
}

// session is one command's view of the server: the client, the persisted
// state and the gate combining them.
type session struct {
	client *client.Client
	state  *authgate.FileState
	gate   *authgate.Gate
}

func (app *App) open() (*session, error) {
	state, err := authgate.LoadFileState(app.StatePath)
	if err != nil {
		return nil, err
	}
	var opts []client.Option
	if app.Logger != nil {
		opts = append(opts, client.WithLogger(app.Logger))
	}
	c, err := client.New(app.APIURL, opts...)
	if err != nil {
		return nil, err
	}
	c.SetCookies(state.Cookies())
	return &session{
		client: c,
		state:  state,
		gate:   authgate.New(c, state, app.Policy),
	}, nil
}

// persist stores the cookies the server handed out during the command.
func (s *session) persist() error {
	if !s.state.Authenticated() {
		return nil
	}
	return s.state.SaveCookies(s.client.Cookies())
}

// NewRootCmd creates the top-level "omocrm" command.
func NewRootCmd(app *App) *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "omocrm",
		Short:         "Kanban and roadmap boards from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug && app.Logger != nil {
				app.Logger.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Log every API request")

	root.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newBoardCmd(app),
		newCardCmd(app),
		newStepCmd(app),
	)
	return root
}

func newLoginCmd(app *App) *cobra.Command {
	var login, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if login == "" || password == "" {
				if app.IsInteractive == nil || !app.IsInteractive() {
					return errors.New("--login and --password are required when not running in a terminal")
				}
				if err := credentialsForm(&login, &password).Run(); err != nil {
					return err
				}
			}
			s, err := app.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := s.gate.Login(ctx, login, password); err != nil {
				return errors.New(authgate.LoginErrorMessage(err))
			}
			if err := s.persist(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", login)
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "Login")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func credentialsForm(login, password *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Логин").Value(login),
			huh.NewInput().Title("Пароль").EchoMode(huh.EchoModePassword).Value(password),
		),
	).WithShowHelp(false)
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget it locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := s.gate.Logout(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show whether the stored session is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open()
			if err != nil {
				return err
			}
			if !s.gate.IsAuthenticated() {
				return errors.New("not logged in")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if !s.gate.ValidateSession(ctx) {
				return errSessionExpired
			}
			if app.Policy == domain.AuthClientFlag {
				fmt.Fprintln(cmd.OutOrStdout(), "authenticated")
				return nil
			}
			user, err := s.client.Me(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user)
			return nil
		},
	}
}
