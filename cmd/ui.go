/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * 终端输出样式
 */
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/maiguangyang/star_relay/pkg/session"
	"github.com/maiguangyang/star_relay/pkg/signaling"
)

// Color palette
var (
	Primary   = lipgloss.Color("#22d3ee")
	Secondary = lipgloss.Color("#7C3AED")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
	Muted     = lipgloss.Color("#6B7280")
)

var (
	successStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(Warning)
	mutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	nameStyle    = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	selfStyle    = lipgloss.NewStyle().Foreground(Secondary).Bold(true)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	tableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))

	joinedBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 2)
)

const (
	iconSuccess = "✅"
	iconError   = "❌"
	iconWarning = "⚠️"
	iconInfo    = "ℹ️"
	iconHub     = "⭐"
	iconPeer    = "👤"
	iconWaiting = "⏳"
	iconMedia   = "🎥"
)

func printError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render(iconError), errorStyle.Render(msg))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", warningStyle.Render(iconWarning), warningStyle.Render(msg))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", successStyle.Render(iconSuccess), msg)
}

func printInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", iconInfo, msg)
}

func displayName(id, userName string) string {
	if userName == "" {
		return id
	}
	return userName
}

// formatChat renders one chat line
func formatChat(name, text string, at time.Time, self bool) string {
	style := nameStyle
	if self {
		style = selfStyle
	}
	return fmt.Sprintf("%s %s %s", mutedStyle.Render(at.Format("15:04")), style.Render(name+":"), text)
}

// printEvent renders a session event as one line
func printEvent(w io.Writer, e session.Event) {
	name := displayName(e.PeerID, e.UserName)
	switch e.Type {
	case session.EventJoined:
		role := "member"
		if e.Role == signaling.RoleMain {
			role = "hub"
		}
		fmt.Fprintln(w, joinedBoxStyle.Render(fmt.Sprintf("%s Joined as %s\n%s id %s",
			iconSuccess, nameStyle.Render(name), iconPeer, mutedStyle.Render(e.PeerID+" ("+role+")"))))
	case session.EventPeerJoined:
		printInfo(w, fmt.Sprintf("%s joined", nameStyle.Render(name)))
	case session.EventPeerLeft:
		printInfo(w, fmt.Sprintf("%s left", nameStyle.Render(name)))
	case session.EventHubChanged:
		printInfo(w, fmt.Sprintf("%s %s is now the hub", iconHub, nameStyle.Render(name)))
	case session.EventWaiting:
		printWarning(w, fmt.Sprintf("%s %s (%s) is waiting, /accept %s or /reject %s", iconWaiting, name, e.PeerID, e.PeerID, e.PeerID))
	case session.EventRejected:
		printInfo(w, fmt.Sprintf("%s rejected", name))
	case session.EventPeerConnected:
		printSuccess(w, fmt.Sprintf("connected to %s", nameStyle.Render(name)))
	case session.EventChat:
		fmt.Fprintln(w, formatChat(name, e.Text, e.SentAt, false))
	case session.EventTrack:
		printInfo(w, fmt.Sprintf("%s %s track from %s", iconMedia, e.Kind, name))
	case session.EventNegotiationFailed:
		printError(w, fmt.Sprintf("negotiation with %s failed: %v", name, e.Err))
	case session.EventDisconnected:
		printError(w, "disconnected from coordinator")
	}
}

// memberTable renders the room membership with lipgloss/table
func memberTable(selfID, hubID string, members []signaling.User, peers []session.PeerInfo) string {
	links := make(map[string]session.PeerInfo, len(peers))
	for _, p := range peers {
		links[p.ID] = p
	}

	rows := [][]string{{selfID, "(you)", roleOf(selfID, hubID), "-"}}
	for _, m := range members {
		link := "-"
		if p, ok := links[m.ID]; ok {
			link = p.State
			if p.ChatOpen {
				link += ", chat"
			}
		}
		rows = append(rows, []string{m.ID, m.UserName, roleOf(m.ID, hubID), link})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("ID", "Name", "Role", "Link").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		}).
		Render()
}

func roleOf(id, hubID string) string {
	if id == hubID {
		return iconHub + " hub"
	}
	return "member"
}
