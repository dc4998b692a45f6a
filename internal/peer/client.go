package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"torrent-bencode/internal/metainfo"
)

const ClientVersion = "torrent-bencode 0.1"

type PeerConnection struct {
	Conn     net.Conn
	PeerID   [20]byte
	InfoHash [20]byte

	// Extension ids the remote peer advertised in its extension handshake.
	Remote *ExtendedHandshake
}

func Dial(ctx context.Context, addr string, infoHash, peerID [20]byte) (*PeerConnection, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	pc, err := NewConnection(ctx, conn, infoHash, peerID)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return pc, nil
}

// NewConnection performs the BitTorrent handshake on an established conn.
func NewConnection(ctx context.Context, conn net.Conn, infoHash, peerID [20]byte) (*PeerConnection, error) {
	setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	hs := NewHandshake(infoHash, peerID)
	if _, err := conn.Write(hs.Serialize()); err != nil {
		return nil, fmt.Errorf("failed to send handshake: %w", err)
	}

	res, err := Read(conn)
	if err != nil {
		return nil, err
	}
	if res.InfoHash != infoHash {
		return nil, fmt.Errorf("peer answered for info hash %x", res.InfoHash)
	}
	if !res.SupportsExtensions() {
		return nil, errors.New("peer does not support the extension protocol")
	}

	return &PeerConnection{
		Conn:     conn,
		PeerID:   res.PeerID,
		InfoHash: infoHash,
	}, nil
}

func setDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
}

func (pc *PeerConnection) send(msg *Message) error {
	_, err := pc.Conn.Write(msg.Serialize())
	return err
}

// readExtended reads until an extension message arrives, skipping the
// regular peer-wire traffic a peer may send first.
func (pc *PeerConnection) readExtended() (uint8, []byte, error) {
	for {
		msg, err := ReadMessage(pc.Conn)
		if err != nil {
			return 0, nil, err
		}
		if msg == nil || msg.ID != MsgExtended {
			continue
		}
		return msg.Extended()
	}
}

// ExchangeExtensions sends our extension handshake and reads the peer's.
func (pc *PeerConnection) ExchangeExtensions(ctx context.Context) error {
	setDeadline(ctx, pc.Conn)
	defer pc.Conn.SetDeadline(time.Time{})

	local := &ExtendedHandshake{
		M: map[string]int64{UtMetadata: LocalMetadataID},
		V: ClientVersion,
	}
	if err := pc.send(NewExtendedMessage(ExtHandshakeID, local.Serialize())); err != nil {
		return err
	}

	for {
		extID, body, err := pc.readExtended()
		if err != nil {
			return err
		}
		if extID != ExtHandshakeID {
			continue
		}
		remote, err := ParseExtendedHandshake(body)
		if err != nil {
			return err
		}
		pc.Remote = remote
		return nil
	}
}

// FetchMetadata downloads the info dictionary piece by piece with
// ut_metadata and verifies it against the info hash.
func (pc *PeerConnection) FetchMetadata(ctx context.Context) (*metainfo.TorrentMeta, error) {
	if pc.Remote == nil {
		if err := pc.ExchangeExtensions(ctx); err != nil {
			return nil, err
		}
	}
	remoteID, ok := pc.Remote.M[UtMetadata]
	if !ok {
		return nil, errors.New("peer does not support ut_metadata")
	}

	assembler, err := NewMetadataAssembler(pc.InfoHash, pc.Remote.MetadataSize)
	if err != nil {
		return nil, err
	}

	setDeadline(ctx, pc.Conn)
	defer pc.Conn.SetDeadline(time.Time{})

	for index := range assembler.NumPieces() {
		req := &MetadataMessage{Type: MetadataRequest, Piece: int64(index)}
		if err := pc.send(NewExtendedMessage(uint8(remoteID), req.Serialize())); err != nil {
			return nil, err
		}

		for {
			extID, body, err := pc.readExtended()
			if err != nil {
				return nil, err
			}
			if extID != LocalMetadataID {
				continue
			}
			msg, err := ParseMetadataMessage(body)
			if err != nil {
				return nil, err
			}
			if msg.Type == MetadataReject {
				return nil, fmt.Errorf("peer rejected metadata piece %d", msg.Piece)
			}
			if msg.Type != MetadataData || msg.Piece != int64(index) {
				continue
			}
			if err := assembler.AddPiece(msg); err != nil {
				return nil, err
			}
			break
		}
	}

	return assembler.Info()
}

func (pc *PeerConnection) Close() error {
	return pc.Conn.Close()
}
