/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 */
package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/maiguangyang/star_relay/pkg/session"
	"github.com/maiguangyang/star_relay/pkg/signaling"
)

type fakeRoom struct {
	chats   []string
	calls   []string
	muted   bool
	chatErr error
	members []signaling.User
	peers   []session.PeerInfo
}

func (f *fakeRoom) SelfID() string   { return "P1" }
func (f *fakeRoom) UserName() string { return "amy" }
func (f *fakeRoom) HubID() string    { return "P1" }
func (f *fakeRoom) Muted() bool      { return f.muted }

func (f *fakeRoom) SendChat(text string) (int, error) {
	if f.chatErr != nil {
		return 0, f.chatErr
	}
	f.chats = append(f.chats, text)
	return 1, nil
}

func (f *fakeRoom) record(name string) error {
	f.calls = append(f.calls, name)
	return nil
}

func (f *fakeRoom) StartAudio() error { return f.record("start audio") }
func (f *fakeRoom) StopAudio() error  { return f.record("stop audio") }
func (f *fakeRoom) StartVideo() error { return f.record("start video") }
func (f *fakeRoom) StopVideo() error  { return f.record("stop video") }
func (f *fakeRoom) Resync() error     { return f.record("sync") }

func (f *fakeRoom) SetMuted(muted bool) error {
	f.muted = muted
	return f.record("mute")
}

func (f *fakeRoom) Accept(id string) error {
	if id != "P2" {
		return session.ErrNotWaiting
	}
	return f.record("accept " + id)
}

func (f *fakeRoom) Reject(id string) error { return f.record("reject " + id) }

func (f *fakeRoom) Members() []signaling.User { return f.members }
func (f *fakeRoom) Peers() []session.PeerInfo { return f.peers }

func TestHandleLineChat(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{}

	quit, err := handleLine(&out, room, "  hello there ")
	if err != nil || quit {
		t.Fatalf("Unexpected result: quit=%v err=%v", quit, err)
	}
	if len(room.chats) != 1 || room.chats[0] != "hello there" {
		t.Errorf("Unexpected chats: %v", room.chats)
	}
	if !strings.Contains(out.String(), "amy:") {
		t.Errorf("Expected own line echoed, got %q", out.String())
	}

	if _, err := handleLine(&out, room, ""); err != nil {
		t.Errorf("Blank line: %v", err)
	}
	if len(room.chats) != 1 {
		t.Error("Blank line must not be sent")
	}

	room.chatErr = session.ErrNoHub
	if _, err := handleLine(&out, room, "lost"); !errors.Is(err, session.ErrNoHub) {
		t.Errorf("Expected ErrNoHub, got %v", err)
	}
}

func TestHandleLineCommands(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{}

	for _, line := range []string{"/audio on", "/audio off", "/video on", "/video off", "/mute", "/accept P2", "/reject P3", "/sync"} {
		if _, err := handleLine(&out, room, line); err != nil {
			t.Errorf("%s: %v", line, err)
		}
	}
	want := []string{"start audio", "stop audio", "start video", "stop video", "mute", "accept P2", "reject P3", "sync"}
	if strings.Join(room.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, room.calls)
	}
	if !room.muted {
		t.Error("Expected /mute to toggle on")
	}

	if quit, _ := handleLine(&out, room, "/quit"); !quit {
		t.Error("Expected /quit to quit")
	}
}

func TestHandleLineErrors(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{}

	cases := map[string]string{
		"/audio":     "usage: /audio on|off",
		"/video up":  "usage: /video on|off",
		"/accept":    "usage: /accept <id>",
		"/teleport":  errUnknownCommand.Error(),
		"/accept P9": session.ErrNotWaiting.Error(),
	}
	for line, want := range cases {
		_, err := handleLine(&out, room, line)
		if err == nil || err.Error() != want {
			t.Errorf("%s: expected %q, got %v", line, want, err)
		}
	}
	if len(room.chats) != 0 {
		t.Error("Commands must not be sent as chat")
	}
}

func TestHandleLineUsers(t *testing.T) {
	var out bytes.Buffer
	room := &fakeRoom{
		members: []signaling.User{{ID: "P2", UserName: "bob"}, {ID: "P3", UserName: "cat"}},
		peers:   []session.PeerInfo{{ID: "P2", UserName: "bob", State: "stable", ChatOpen: true}},
	}
	if _, err := handleLine(&out, room, "/users"); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"P1", "bob", "cat", "stable, chat", "hub"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in table:\n%s", want, got)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	printEvent(&out, session.Event{Type: session.EventWaiting, PeerID: "P4", UserName: "dan"})
	if !strings.Contains(out.String(), "/accept P4") {
		t.Errorf("Expected approval hint, got %q", out.String())
	}

	out.Reset()
	printEvent(&out, session.Event{Type: session.EventChat, PeerID: "P2", UserName: "bob", Text: "hi"})
	if !strings.Contains(out.String(), "bob:") || !strings.Contains(out.String(), "hi") {
		t.Errorf("Unexpected chat line %q", out.String())
	}
}
