/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * join - 终端聊天客户端
 */
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maiguangyang/star_relay/pkg/config"
	"github.com/maiguangyang/star_relay/pkg/media"
	"github.com/maiguangyang/star_relay/pkg/session"
	"github.com/maiguangyang/star_relay/pkg/signaling"
)

var errUnknownCommand = errors.New("unknown command, try /help")

var (
	flagName          string
	flagSTUN          string
	flagTURN          string
	flagTURNUser      string
	flagTURNPass      string
	flagOfferTimeout  time.Duration
	flagOfferRetries  int
	flagManualApprove bool
	flagAudio         string
	flagVideo         string
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and chat from the terminal",
	Long: `Join a room and chat from the terminal. Lines are sent as chat;
commands start with a slash:

  /audio on|off   publish or withdraw the audio file
  /video on|off   publish or withdraw the video file
  /mute           toggle local audio
  /accept <id>    connect a waiting member (hub with --manual-approve)
  /reject <id>    turn a waiting member away
  /sync           ask the coordinator for a fresh membership snapshot
  /users          show the room
  /quit           leave

Examples:
  star_relay join standup --name amy
  star_relay join standup --video demo.ivf --audio demo.ogg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd, args[0])
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&flagName, "name", "", "display name (the coordinator picks one when empty)")
	f.StringVar(&flagSTUN, "stun", "", "STUN server (env STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server (env TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.DurationVar(&flagOfferTimeout, "offer-timeout", 0, "roll back an unanswered offer after this long (env OFFER_TIMEOUT)")
	f.IntVar(&flagOfferRetries, "offer-retries", 0, "re-offers before giving up (env OFFER_RETRIES)")
	f.BoolVar(&flagManualApprove, "manual-approve", false, "hold new members until /accept (env MANUAL_APPROVE)")
	f.StringVar(&flagAudio, "audio", "", "Ogg/Opus file for /audio on (env AUDIO_FILE)")
	f.StringVar(&flagVideo, "video", "", "IVF file for /video on (env VIDEO_FILE)")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, roomID string) error {
	opts := config.Options{
		STUNServer:   flagSTUN,
		TURNServer:   flagTURN,
		TURNUser:     flagTURNUser,
		TURNPass:     flagTURNPass,
		OfferTimeout: flagOfferTimeout,
		AudioFile:    flagAudio,
		VideoFile:    flagVideo,
	}
	if cmd.Flags().Changed("offer-retries") {
		opts.OfferRetries = &flagOfferRetries
	}
	if cmd.Flags().Changed("manual-approve") {
		opts.ManualApprove = &flagManualApprove
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	client := session.NewClient(cfg.CoordinatorURL)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	sc := session.DefaultConfig()
	sc.UserName = flagName
	sc.ICEServers = cfg.ICEServers()
	sc.Negotiation = cfg.NegotiationConfig()
	sc.ManualApprove = cfg.ManualApprove
	if cfg.AudioFile != "" || cfg.VideoFile != "" {
		sc.Media = media.NewFileSource(uuid.NewString(), cfg.AudioFile, cfg.VideoFile)
	}

	s := session.New(client, sc)
	defer s.Close()
	s.SetOnEvent(func(e session.Event) {
		printEvent(out, e)
	})
	if err := s.Join(roomID); err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- s.Run(ctx, client.Incoming())
	}()

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(out, s, line)
			if err != nil {
				printError(out, err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		printError(os.Stderr, err.Error())
	}
}

// roomSession is the part of session.Session the prompt drives
type roomSession interface {
	SelfID() string
	UserName() string
	HubID() string
	SendChat(text string) (int, error)
	StartAudio() error
	StopAudio() error
	StartVideo() error
	StopVideo() error
	SetMuted(muted bool) error
	Muted() bool
	Accept(peerID string) error
	Reject(peerID string) error
	Resync() error
	Members() []signaling.User
	Peers() []session.PeerInfo
}

// handleLine runs one prompt line. It reports whether the user asked to quit.
func handleLine(w io.Writer, s roomSession, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if _, err := s.SendChat(line); err != nil {
			return false, err
		}
		fmt.Fprintln(w, formatChat(displayName(s.SelfID(), s.UserName()), line, time.Now(), true))
		return false, nil
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/audio":
		return false, toggle(w, "audio", arg, s.StartAudio, s.StopAudio)

	case "/video":
		return false, toggle(w, "video", arg, s.StartVideo, s.StopVideo)

	case "/mute":
		muted := !s.Muted()
		if err := s.SetMuted(muted); err != nil {
			return false, err
		}
		if muted {
			printInfo(w, "audio muted")
		} else {
			printInfo(w, "audio unmuted")
		}

	case "/accept", "/reject":
		if arg == "" {
			return false, fmt.Errorf("usage: %s <id>", name)
		}
		fn := s.Accept
		if name == "/reject" {
			fn = s.Reject
		}
		if err := fn(arg); err != nil {
			return false, err
		}

	case "/sync":
		if err := s.Resync(); err != nil {
			return false, err
		}
		printInfo(w, "sync requested")

	case "/users":
		fmt.Fprintln(w, memberTable(s.SelfID(), s.HubID(), s.Members(), s.Peers()))

	case "/help":
		fmt.Fprintln(w, mutedStyle.Render("/audio on|off  /video on|off  /mute  /accept <id>  /reject <id>  /sync  /users  /quit"))

	default:
		return false, errUnknownCommand
	}
	return false, nil
}

func toggle(w io.Writer, kind, arg string, start, stop func() error) error {
	switch arg {
	case "on":
		if err := start(); err != nil {
			return err
		}
		printSuccess(w, kind+" on")
	case "off":
		if err := stop(); err != nil {
			return err
		}
		printInfo(w, kind+" off")
	default:
		return fmt.Errorf("usage: /%s on|off", kind)
	}
	return nil
}
