package peer

import (
	"fmt"
	"io"
)

const (
	ProtocolStr   = "BitTorrent protocol"
	HandshakeSize = 1 + len(ProtocolStr) + 8 + 20 + 20

	reservedStart = 1 + len(ProtocolStr)
	infoHashStart = reservedStart + 8
	peerIDStart   = infoHashStart + 20

	// Bit 0x10 of reserved byte 5 advertises the extension protocol.
	extensionByte = 5
	extensionBit  = 0x10
)

// Handshake is the fixed 68-byte greeting both sides send first. The
// protocol string is implied.
type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// NewHandshake builds a handshake that advertises extension protocol
// support.
func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	h := &Handshake{InfoHash: infoHash, PeerID: peerID}
	h.Reserved[extensionByte] |= extensionBit
	return h
}

func (h *Handshake) SupportsExtensions() bool {
	return h.Reserved[extensionByte]&extensionBit != 0
}

func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 0, HandshakeSize)
	buf = append(buf, byte(len(ProtocolStr)))
	buf = append(buf, ProtocolStr...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash[:]...)
	return append(buf, h.PeerID[:]...)
}

// Read reads one handshake from r and checks the protocol string.
func Read(r io.Reader) (*Handshake, error) {
	var buf [HandshakeSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}

	if n := int(buf[0]); n != len(ProtocolStr) {
		return nil, fmt.Errorf("invalid protocol string length: %d", n)
	}
	if pstr := string(buf[1:reservedStart]); pstr != ProtocolStr {
		return nil, fmt.Errorf("invalid protocol string: %q", pstr)
	}

	return &Handshake{
		Reserved: [8]byte(buf[reservedStart:infoHashStart]),
		InfoHash: [20]byte(buf[infoHashStart:peerIDStart]),
		PeerID:   [20]byte(buf[peerIDStart:]),
	}, nil
}
