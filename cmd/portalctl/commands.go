package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/portal"
)

type credentials struct {
	email    *string
	password *string
	code     *string
}

func credentialFlags(fs *flag.FlagSet) credentials {
	return credentials{
		email:    fs.String("email", config.EnvString("SYSHUB_EMAIL", ""), "account email"),
		password: fs.String("password", config.EnvString("SYSHUB_PASSWORD", ""), "account password"),
		code:     fs.String("code", "", "verification code, prompted for when needed"),
	}
}

// login signs in, asking for a verification code when the account has one.
func (c *cli) login(ctx context.Context, creds credentials) (*portal.User, error) {
	email, password := strings.TrimSpace(*creds.email), *creds.password
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := c.provider.Login(ctx, email, password, *creds.code)
	if err == nil || !portal.IsMFARequired(err) || *creds.code != "" {
		return user, err
	}

	if err := c.client.RequestLoginCode(ctx, email, password); err != nil {
		c.logger.Warn("sms code request failed", "error", err)
	}
	code, err := c.prompt("verification code (authenticator app or SMS): ")
	if err != nil {
		return nil, err
	}
	return c.provider.Login(ctx, email, password, code)
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	creds := credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := c.login(ctx, creds)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.provider.Logout(context.Background())
	}()
	renderAccount(c.out, user, time.Now())
	return nil
}

func (c *cli) cmdLogout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	token := fs.String("refresh-token", "", "refresh token to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("refresh-token is required")
	}
	if err := c.client.SignOut(ctx, *token); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "signed out")
	return nil
}

func (c *cli) cmdProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	creds := credentialFlags(fs)
	sectionName := fs.String("section", "account", "profile section")
	newPassword := fs.String("new-password", "", "change the password (password section)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	section, err := portal.ParseSection(*sectionName)
	if err != nil {
		return err
	}

	if _, err := c.login(ctx, creds); err != nil {
		return err
	}
	defer func() {
		_ = c.provider.Logout(context.Background())
	}()
	return c.showSection(ctx, section, *creds.password, *newPassword)
}

// showSection renders one profile panel.
func (c *cli) showSection(ctx context.Context, section portal.Section, password, newPassword string) error {
	user, ok := c.provider.Current()
	if !ok {
		return portal.ErrNotLoggedIn
	}

	switch section {
	case portal.SectionAccount:
		renderAccount(c.out, &user, time.Now())
	case portal.SectionTwoFactor:
		status, err := c.provider.TwoFactorStatus(ctx)
		if err != nil {
			return err
		}
		renderTwoFactor(c.out, status)
	case portal.SectionPassword:
		if newPassword == "" {
			fmt.Fprintln(c.out, "pass -new-password to change your password")
			return nil
		}
		fmt.Fprintf(c.out, "new password strength: %s\n", strengthLabel(portal.PasswordStrength(newPassword)))
		if err := c.provider.ChangePassword(ctx, password, newPassword); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "password changed")
	case portal.SectionMasternodes:
		api, err := c.provider.API(ctx)
		if err != nil {
			return err
		}
		items, err := api.UserMasternodes(ctx, user.ID)
		if err != nil {
			return err
		}
		renderMasternodes(c.out, items, time.Now())
	case portal.SectionDeleteAccount:
		fmt.Fprintln(c.out, "deleting the account releases your masternodes and removes your votes")
		fmt.Fprintln(c.out, "run: portalctl delete-account -yes")
	default:
		return fmt.Errorf("unknown section %v", section)
	}
	return nil
}

func (c *cli) cmdTwoFactor(ctx context.Context, args []string) error {
	if len(args) == 0 || (args[0] != "enable" && args[0] != "disable") {
		return errors.New("usage: portalctl 2fa enable|disable")
	}
	action := args[0]

	fs := flag.NewFlagSet("2fa "+action, flag.ContinueOnError)
	creds := credentialFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if _, err := c.login(ctx, creds); err != nil {
		return err
	}
	logout := func() {
		_ = c.provider.Logout(context.Background())
	}
	defer logout()

	tick := portal.WithTick(func(remaining int) {
		fmt.Fprintf(c.out, "signing out in %d...\n", remaining)
	})

	if action == "enable" {
		flow := portal.NewEnableFlow(c.provider, logout, tick)
		setup, err := flow.Open()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "secret: %s\n", setup.Secret)
		fmt.Fprintf(c.out, "otpauth url: %s\n", setup.OTPAuthURL)
		code, err := c.prompt("code from your authenticator app: ")
		if err != nil {
			return err
		}
		if err := flow.Submit(ctx, *creds.password, code); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "authenticator enabled")
		return c.waitLoggedOut(ctx, flow.LoggedOut())
	}

	flow := portal.NewDisableFlow(c.provider, logout, tick)
	if err := flow.Open(); err != nil {
		return err
	}
	if status, err := c.provider.TwoFactorStatus(ctx); err == nil && status.SMS {
		if err := c.provider.RequestSMSCode(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "a code was sent to your phone")
	}
	code, err := c.prompt("current verification code: ")
	if err != nil {
		return err
	}
	if err := flow.Submit(ctx, *creds.password, code); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "two-factor verification disabled")
	return c.waitLoggedOut(ctx, flow.LoggedOut())
}

func (c *cli) cmdDeleteAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-account", flag.ContinueOnError)
	creds := credentialFlags(fs)
	yes := fs.Bool("yes", false, "confirm permanent deletion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return errors.New("refusing to delete without -yes")
	}
	if _, err := c.login(ctx, creds); err != nil {
		return err
	}
	logout := func() {
		_ = c.provider.Logout(context.Background())
	}

	flow := portal.NewDeletionFlow(c.provider, logout, portal.WithTick(func(remaining int) {
		fmt.Fprintf(c.out, "signing out in %d...\n", remaining)
	}))
	needsCode, err := flow.Confirm(ctx, *creds.email, *creds.password)
	if err != nil {
		return err
	}
	if needsCode {
		if status, err := c.provider.TwoFactorStatus(ctx); err == nil && status.SMS {
			if err := c.provider.RequestSMSCode(ctx); err != nil {
				return err
			}
		}
		for {
			code, err := c.prompt("verification code: ")
			if err != nil {
				return err
			}
			err = flow.SubmitCode(ctx, code)
			if err == nil {
				break
			}
			if flow.State() != portal.StateAwaitingCode {
				return err
			}
			fmt.Fprintf(c.out, "%v, try again\n", err)
		}
	}
	fmt.Fprintln(c.out, "account deleted")
	return c.waitLoggedOut(ctx, flow.LoggedOut())
}

func (c *cli) waitLoggedOut(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		fmt.Fprintln(c.out, "signed out")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cli) cmdMasternodes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("masternodes", flag.ContinueOnError)
	search := fs.String("search", "", "filter by address, label, txid or ip")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", portal.DefaultPerPage, "rows per page")
	sortBy := fs.String("sort", "", "sort column: rank, address, status, last_paid, collateral, label")
	desc := fs.Bool("desc", false, "sort descending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	table := portal.NewTable(c.client, *perPage)
	table.SetSearch(*search)
	table.SetSort(*sortBy, *desc)
	res, err := table.Load(ctx, *page)
	if err != nil {
		return err
	}
	renderMasternodes(c.out, res.Items, time.Now())
	fmt.Fprintf(c.out, "page %d of %d (%d masternodes)\n", table.Page(), table.Pages(), table.Total())
	return nil
}

func (c *cli) cmdProposals(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("proposals", flag.ContinueOnError)
	status := fs.String("status", "", "draft or submitted")
	limit := fs.Int("limit", 20, "page size")
	cursor := fs.String("cursor", "", "cursor from a previous page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := c.client.ListProposals(ctx, portal.ProposalFilter{Status: *status, Cursor: *cursor, Limit: *limit})
	if err != nil {
		return err
	}
	renderProposals(c.out, page.Items, time.Now())
	if page.NextCursor != "" {
		fmt.Fprintf(c.out, "more: portalctl proposals -cursor %s\n", page.NextCursor)
	}
	return nil
}
