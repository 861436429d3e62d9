/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maiguangyang/star_relay/pkg/config"
	"github.com/maiguangyang/star_relay/pkg/coordinator"
)

const shutdownTimeout = 5 * time.Second

var (
	flagListen            string
	flagHubRule           string
	flagKeepaliveInterval time.Duration
	flagKeepaliveTimeout  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room coordinator",
	Long: `Run the room coordinator: websocket signaling on /ws, health on /health
and a JSON room listing on /status.

Examples:
  star_relay serve
  star_relay serve --listen :8080 --hub-rule lowest-id`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (env LISTEN_ADDR, default :3001)")
	serveCmd.Flags().StringVar(&flagHubRule, "hub-rule", "", "hub election rule: arrival or lowest-id (env HUB_RULE)")
	serveCmd.Flags().DurationVar(&flagKeepaliveInterval, "keepalive-interval", 0, "ping interval (env KEEPALIVE_INTERVAL)")
	serveCmd.Flags().DurationVar(&flagKeepaliveTimeout, "keepalive-timeout", 0, "evict after this long without a pong (env KEEPALIVE_TIMEOUT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(config.Options{
		ListenAddr:        flagListen,
		HubRule:           flagHubRule,
		KeepaliveInterval: flagKeepaliveInterval,
		KeepaliveTimeout:  flagKeepaliveTimeout,
	})
	if err != nil {
		return err
	}

	srv := coordinator.NewServer(cfg.ServerConfig())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	printSuccess(os.Stdout, fmt.Sprintf("Coordinator listening on %s (hub rule %s)", cfg.ListenAddr, cfg.HubRule))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	printInfo(os.Stdout, "Coordinator stopped")
	return nil
}
