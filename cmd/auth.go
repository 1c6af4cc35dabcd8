package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/cheerily/cheerily/auth"
	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// authCmd groups the Reddit authorization commands
func authCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Reddit authorization",
	}

	cmd.AddCommand(
		authURLCmd(a),
		authCompleteCmd(a),
		authLoginCmd(a),
		authRenewCmd(a),
		authRevokeCmd(a),
		authStatusCmd(a),
	)

	return cmd
}

// authURLCmd prints the authorization URL for a manual login
func authURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "url",
		Short:       "Print the URL to authorize Cheerily on Reddit",
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			authURL, _, err := svc.BuildAuthorizationURL(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			cmd.Println("Open this URL in a browser and approve access:")
			cmd.Println(authURL)
			cmd.Println("Then run: cheerily auth complete '<the URL you were redirected to>'")
			return nil
		},
	}
}

// authCompleteCmd finishes a manual login with the redirect the browser landed on
func authCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "complete <redirect-url>",
		Short:       "Finish authorization with the redirect URL",
		Args:        cobra.ExactArgs(1),
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			if err := finishAuthorization(cmd.Context(), svc, args[0]); err != nil {
				return toCLIError(err)
			}
			cmd.Println("Authorized. Run 'cheerily next' for your first cheer.")
			return nil
		},
	}
}

// authLoginCmd runs the whole authorization flow and waits for the redirect
func authLoginCmd(a *app) *cobra.Command {
	var (
		useBrowser bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Authorize Cheerily on Reddit and wait for the redirect",
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			authURL, _, err := svc.BuildAuthorizationURL(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			if !useBrowser {
				cmd.Println("Open this URL in a browser and approve access:")
				cmd.Println(authURL)
			}

			redirect, err := awaitRedirect(cmd.Context(), authURL, a.cfg.RedirectURI, useBrowser, timeout)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return clierr.New(clierr.Auth, "Timed out waiting for the authorization redirect.", err)
				}
				return clierr.New(clierr.Network, "Could not receive the authorization redirect: "+err.Error(), err)
			}
			if err := finishAuthorization(cmd.Context(), svc, redirect); err != nil {
				return toCLIError(err)
			}
			cmd.Println("Authorized. Run 'cheerily next' for your first cheer.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&useBrowser, "browser", "b", false, "Open a Chrome window and capture the redirect from it")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Minute, "How long to wait for the redirect")

	return cmd
}

// authRenewCmd trades the refresh token for a new access token
func authRenewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "renew",
		Short:       "Renew the access token",
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			if err := svc.RenewAccessToken(cmd.Context()); err != nil {
				return toCLIError(err)
			}
			cmd.Println("Access token renewed.")
			return nil
		},
	}
}

// authRevokeCmd revokes the refresh token and forgets the session
func authRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "revoke",
		Short:       "Revoke the Reddit authorization",
		Annotations: upstream(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.authService()
			if err != nil {
				return err
			}
			if err := svc.Revoke(cmd.Context()); err != nil {
				return toCLIError(err)
			}
			cmd.Println("Authorization revoked. Local tokens were removed.")
			return nil
		},
	}
}

// authStatusCmd shows where the session is in the authorization flow
func authStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the authorization status",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := db.NewTokenRepository(db.GetDB())
			// Status never calls upstream, so no exchanger is needed.
			state, err := auth.NewServiceWithRepo(repo, nil).Status(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			cmd.Println("Status:", state)

			token, err := repo.Get(cmd.Context())
			if err != nil {
				return toCLIError(err)
			}
			if token.HasAccessToken() {
				cmd.Println("Access token:", db.Redact(token.AccessToken))
			}
			if token.HasRefreshToken() {
				cmd.Println("Refresh token:", db.Redact(token.RefreshToken))
			}
			return nil
		},
	}
}

func finishAuthorization(ctx context.Context, svc *auth.Service, redirect string) error {
	if err := svc.CompleteAuthorization(ctx, redirect); err != nil {
		return err
	}
	return svc.ExchangeCodeForTokens(ctx)
}

// awaitRedirect waits for the browser to come back to redirectURI. With
// useBrowser the loopback listener and a Chrome window race; the first
// redirect wins.
func awaitRedirect(ctx context.Context, authURL, redirectURI string, useBrowser bool, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		redirect string
		err      error
	}
	waiting := 1
	if useBrowser {
		waiting = 2
	}
	results := make(chan result, waiting)

	go func() {
		redirect, err := client.ListenForRedirect(ctx, redirectURI)
		results <- result{redirect, err}
	}()
	if useBrowser {
		go func() {
			redirect, err := client.CaptureRedirectInBrowser(ctx, authURL, redirectURI, timeout)
			results <- result{redirect, err}
		}()
	}

	var errs []error
	for i := 0; i < waiting; i++ {
		r := <-results
		if r.err == nil {
			return r.redirect, nil
		}
		log.Debug().Err(r.err).Msg("Redirect capture failed")
		errs = append(errs, r.err)
	}
	return "", errors.Join(errs...)
}
