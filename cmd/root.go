/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maiguangyang/star_relay/pkg/config"
	"github.com/maiguangyang/star_relay/pkg/utils"
)

var (
	flagLogLevel string
	flagServer   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "star_relay",
	Short: "Small-group chat, audio and video over a WebRTC star",
	Long: `star_relay runs a lightweight room coordinator and a terminal client.

The coordinator tracks room membership and elects one participant per room
as the hub. Every other member connects only to the hub, which fans chat and
media out to the rest of the room. When the hub leaves, the coordinator
elects a new one and the room reconnects around it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "coordinator websocket URL (env COORDINATOR_URL)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 日志走 stderr, stdout 留给聊天内容
	utils.SetOutput(os.Stderr)

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}

// loadConfig applies the shared flags and the log level
func loadConfig(opts config.Options) (*config.Config, error) {
	opts.LogLevel = flagLogLevel
	if opts.CoordinatorURL == "" {
		opts.CoordinatorURL = flagServer
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	utils.SetLevel(cfg.Level())
	return cfg, nil
}
