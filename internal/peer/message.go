package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type messageID uint8

const (
	MsgChoke         messageID = 0
	MsgUnchoke       messageID = 1
	MsgInterested    messageID = 2
	MsgNotInterested messageID = 3
	MsgHave          messageID = 4
	MsgBitfield      messageID = 5
	MsgRequest       messageID = 6
	MsgPiece         messageID = 7
	MsgCancel        messageID = 8
	MsgExtended      messageID = 20
)

// Longest message accepted from a peer: a 16 KiB block plus headers, with
// room for large bitfields.
const maxMessageLength = 1 << 20

type Message struct {
	ID      messageID
	Payload []byte
}

// Serialize frames the message with its length prefix. A nil message is a
// keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one framed message. Keep-alives are returned as nil.
func ReadMessage(r io.Reader) (*Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])

	if length == 0 {
		return nil, nil
	}
	if length > maxMessageLength {
		return nil, fmt.Errorf("message length %d exceeds limit", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return &Message{ID: messageID(buf[0]), Payload: buf[1:]}, nil
}

// NewExtendedMessage wraps an extension payload. extID 0 is the extension
// handshake; other ids are the ones the receiving peer advertised.
func NewExtendedMessage(extID uint8, body []byte) *Message {
	payload := make([]byte, 1+len(body))
	payload[0] = extID
	copy(payload[1:], body)
	return &Message{ID: MsgExtended, Payload: payload}
}

// Extended splits an extension message into its id and body.
func (m *Message) Extended() (uint8, []byte, error) {
	if m.ID != MsgExtended {
		return 0, nil, fmt.Errorf("message %d is not an extension message", m.ID)
	}
	if len(m.Payload) == 0 {
		return 0, nil, errors.New("empty extension message")
	}
	return m.Payload[0], m.Payload[1:], nil
}
