/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-10-14
 *
 * Chat - data channel 上的聊天消息 (msgpack 编码)
 */
package forwarder

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ChatLabel is the data channel label used for chat
const ChatLabel = "chat"

// ChatMessage is one chat line. The hub relays the encoded bytes untouched.
type ChatMessage struct {
	From     string    `msgpack:"from"`
	UserName string    `msgpack:"userName"`
	Text     string    `msgpack:"text"`
	SentAt   time.Time `msgpack:"sentAt"`
}

// NewChatMessage stamps a message with the current time
func NewChatMessage(from, userName, text string) *ChatMessage {
	return &ChatMessage{
		From:     from,
		UserName: userName,
		Text:     text,
		SentAt:   time.Now(),
	}
}

// Encode serializes the message for the data channel
func (m *ChatMessage) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeChat parses a chat frame
func DecodeChat(raw []byte) (*ChatMessage, error) {
	var m ChatMessage
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChat, err)
	}
	if m.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformedChat)
	}
	return &m, nil
}
