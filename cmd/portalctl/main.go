// Command portalctl is a terminal client for the syshub portal. Sessions live
// only as long as one invocation; nothing is written to disk.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/osiastedian/syshub/libs/config"
	"github.com/osiastedian/syshub/libs/logging"
	"github.com/osiastedian/syshub/libs/portal"
)

type cli struct {
	client   *portal.Client
	provider *portal.Provider
	in       *bufio.Reader
	out      io.Writer
	logger   *slog.Logger
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, config.EnvString("SYSHUB_LOG_LEVEL", "warn"), "portalctl", config.EnvString("SYSHUB_ENV", "dev"))
	client := portal.NewClient(endpointsFromEnv(), nil)
	c := &cli{
		client:   client,
		provider: portal.NewProvider(client, portal.WithProviderLogger(logger)),
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		logger:   logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.cmdLogin(ctx, args)
	case "logout":
		return c.cmdLogout(ctx, args)
	case "profile":
		return c.cmdProfile(ctx, args)
	case "2fa":
		return c.cmdTwoFactor(ctx, args)
	case "delete-account":
		return c.cmdDeleteAccount(ctx, args)
	case "masternodes":
		return c.cmdMasternodes(ctx, args)
	case "proposals":
		return c.cmdProposals(ctx, args)
	default:
		printUsage(c.out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func endpointsFromEnv() portal.Endpoints {
	return portal.Endpoints{
		Auth:       config.EnvString("SYSHUB_AUTH_URL", "http://localhost:8081"),
		API:        config.EnvString("SYSHUB_API_URL", "http://localhost:8082"),
		User:       config.EnvString("SYSHUB_USER_URL", ""),
		Masternode: config.EnvString("SYSHUB_MASTERNODE_URL", ""),
		Governance: config.EnvString("SYSHUB_GOVERNANCE_URL", ""),
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage: portalctl <command> [flags]

commands:
  login                      check credentials and show the signed-in user
  logout -refresh-token T    revoke a refresh token
  profile [-section name]    show a profile section (account, two-factor, password, masternodes, delete-account)
  2fa enable|disable         turn authenticator or SMS verification on or off
  delete-account -yes        permanently delete the account
  masternodes                search the masternode list
  proposals                  list governance proposals

credentials come from -email/-password or SYSHUB_EMAIL/SYSHUB_PASSWORD`)
}
