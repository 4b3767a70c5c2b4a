// Command gatewayctl inspects and drives a Gateway fleet through its Register.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type arguments struct {
	Globals `embed:""`

	Addresses AddressesCommand `cmd:"" help:"List the internal addresses of every Gateway."`
	Send      SendCommand      `cmd:"" help:"Send a message to one client."`
	Broadcast BroadcastCommand `cmd:"" help:"Send a message to every client, a group or a set of uids."`
	Online    OnlineCommand    `cmd:"" help:"Check whether clients or uids are online."`
	Count     CountCommand     `cmd:"" help:"Count connected clients."`
	Sessions  SessionsCommand  `cmd:"" help:"Print client sessions as JSON."`
	Kick      KickCommand      `cmd:"" help:"Close a client after flushing an optional message."`
	Destroy   DestroyCommand   `cmd:"" help:"Drop a client immediately."`
	Groups    GroupsCommand    `cmd:"" help:"List groups, optionally with member counts."`
	Uids      UidsCommand      `cmd:"" help:"List bound uids."`
	Watch     WatchCommand     `cmd:"" help:"Poll fleet counts and serve client metrics over HTTP."`
}

func main() {
	if dotenvErr := godotenv.Load(); dotenvErr != nil && !os.IsNotExist(dotenvErr) {
		fmt.Printf("Failed to load .env file! %s\n", dotenvErr.Error())
	}

	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") == "development" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("gatewayctl failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, args []string) error {
	cli := &arguments{}
	parser, err := kong.New(cli,
		kong.Name("gatewayctl"),
		kong.Description("Operate a Gateway fleet through its Register."),
		kong.UsageOnError())
	if err != nil {
		return err
	}
	// Trailing spaces from shell scripts otherwise show up as empty positional args
	var cleaned []string
	for _, arg := range args {
		if arg = strings.TrimSpace(arg); arg != "" {
			cleaned = append(cleaned, arg)
		}
	}
	kctx, err := parser.Parse(cleaned)
	if err != nil {
		return err
	}

	ctx, release := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer release()

	session, err := cli.Globals.open(ctx, logger)
	if err != nil {
		return err
	}
	defer session.close()

	return kctx.Run(session)
}
