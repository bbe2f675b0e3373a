package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chan-rpc/client"
	"chan-rpc/config"
	"chan-rpc/invoker"
	"chan-rpc/middleware"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type dialFlags struct {
	addr string
	name string
	zone string
}

var df dialFlags

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a server and host a Notifier for it to call",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDial(ctx)
	},
}

func init() {
	hostname, _ := os.Hostname()
	f := dialCmd.Flags()
	f.StringVar(&df.addr, "addr", "127.0.0.1:8080", "server address")
	f.StringVar(&df.name, "name", hostname, "receiver name reported in acks")
	f.StringVar(&df.zone, "zone", "", "time zone for the server clock query")
}

func runDial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cli, err := client.Dial(dialCtx, "tcp", df.addr,
		client.WithConfig(config.New(baseParams())), client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer cli.Close()

	if err := cli.RegisterName(notifierPath, &Notifier{name: df.name, logger: logger}); err != nil {
		return err
	}
	cli.Use(middleware.LoggingMiddleware(logger))

	clock := middleware.Wrap(cli.Invoker(nil, invoker.WithPath(clockPath)),
		middleware.RetryMiddleware(2, 100*time.Millisecond, logger))
	var now time.Time
	if err := invoker.Call(ctx, clock, "Now", &NowArgs{Zone: df.zone}, &now); err != nil {
		logger.Warn("clock query failed", zap.Error(err))
	} else {
		logger.Info("server clock", zap.Time("now", now))
	}

	select {
	case <-ctx.Done():
	case <-cli.Channel().Done():
		logger.Info("server closed the connection")
	}
	return nil
}
