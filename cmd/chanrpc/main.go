// Command chanrpc runs both ends of a reverse-call demo: "serve" accepts connections and
// periodically calls the Notifier callback each client hosts on its own connection; "dial"
// connects, hosts the Notifier and prints what the server sends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type globalFlags struct {
	logLevel string
	logFile  string
	codec    string
	timeout  string
}

var (
	flags  globalFlags
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "chanrpc",
	Short:         "Reverse RPC calls over an established connection",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(flags.logLevel, flags.logFile)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l
		zap.ReplaceGlobals(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "write JSON logs to this file, rotated (default: stderr)")
	rootCmd.PersistentFlags().StringVar(&flags.codec, "codec", "binary", "body codec: json|binary|msgpack")
	rootCmd.PersistentFlags().StringVar(&flags.timeout, "timeout", "1s", "default call timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dialCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if file == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// baseParams are the channel parameters shared by both subcommands.
func baseParams() map[string]string {
	return map[string]string{
		"codec":   flags.codec,
		"timeout": flags.timeout,
	}
}
