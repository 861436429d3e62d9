/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/maiguangyang/star_relay/pkg/config"
	"github.com/maiguangyang/star_relay/pkg/coordinator"
)

const statusTimeout = 5 * time.Second

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the coordinator's active rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		status, err := fetchStatus(cmd.Context(), cfg.StatusURL())
		if err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}

// fetchStatus reads the coordinator's /status endpoint
func fetchStatus(ctx context.Context, url string) (*coordinator.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid status URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coordinator returned %s", resp.Status)
	}
	var status coordinator.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &status, nil
}

// renderStatus prints rooms and counters as go-pretty tables
func renderStatus(w io.Writer, status *coordinator.StatusResponse) {
	rooms := table.NewWriter()
	rooms.SetOutputMirror(w)
	rooms.SetStyle(table.StyleRounded)
	rooms.SetTitle("Rooms")
	rooms.AppendHeader(table.Row{"Room", "Hub", "Peers", "Users"})
	for _, r := range status.Rooms {
		names := make([]string, 0, len(r.Users))
		for _, u := range r.Users {
			name := displayName(u.ID, u.UserName)
			if u.ID == r.MainID {
				name = iconHub + name
			}
			names = append(names, name)
		}
		rooms.AppendRow(table.Row{r.RoomID, r.MainID, r.PeerCount, strings.Join(names, ", ")})
	}
	if len(status.Rooms) == 0 {
		rooms.AppendRow(table.Row{"-", "-", 0, "no active rooms"})
	}
	rooms.Render()

	s := status.Stats
	stats := table.NewWriter()
	stats.SetOutputMirror(w)
	stats.SetStyle(table.StyleRounded)
	stats.AppendHeader(table.Row{"Metric", "Value"})
	stats.AppendRows([]table.Row{
		{"Uptime", (time.Duration(s.UptimeSeconds) * time.Second).String()},
		{"Connections", s.Connections},
		{"Joins / Leaves", fmt.Sprintf("%d / %d", s.Joins, s.Leaves)},
		{"Signals routed", s.SignalsRouted},
		{"Signals dropped", s.SignalsDropped},
		{"Malformed dropped", s.MalformedDropped},
		{"Hub changes", s.HubChanges},
		{"Evictions", s.Evictions},
	})
	stats.Render()
}
