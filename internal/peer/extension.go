package peer

import (
	"errors"
	"fmt"

	"torrent-bencode/internal/bencode"
)

const (
	ExtHandshakeID = 0
	UtMetadata     = "ut_metadata"

	// Local id under which this client receives ut_metadata messages.
	LocalMetadataID = 1

	MetadataPieceSize = 16 * 1024
	MaxMetadataSize   = 16 * 1024 * 1024
)

// ExtendedHandshake is the bencoded payload of extension message 0.
type ExtendedHandshake struct {
	M            map[string]int64
	V            string
	Port         int64
	MetadataSize int64
	Reqq         int64
}

func (h *ExtendedHandshake) Dict() *bencode.BDict {
	m := bencode.NewDict()
	for name, id := range h.M {
		m.AddInt(name, id)
	}

	d := bencode.NewDict()
	d.Add("m", m)
	if h.V != "" {
		d.AddText("v", h.V)
	}
	if h.Port > 0 {
		d.AddInt("p", h.Port)
	}
	if h.MetadataSize > 0 {
		d.AddInt("metadata_size", h.MetadataSize)
	}
	if h.Reqq > 0 {
		d.AddInt("reqq", h.Reqq)
	}
	return d
}

func (h *ExtendedHandshake) Serialize() []byte {
	return bencode.Encode(h.Dict())
}

// ParseExtendedHandshake reads a handshake body. Unknown keys are ignored
// and an id of 0 in "m" means the peer disabled that extension.
func ParseExtendedHandshake(body []byte) (*ExtendedHandshake, error) {
	v, err := bencode.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("extension handshake: %w", err)
	}
	d, ok := v.(*bencode.BDict)
	if !ok {
		return nil, errors.New("extension handshake is not a dictionary")
	}

	h := &ExtendedHandshake{M: make(map[string]int64)}
	if m, ok := d.GetDict("m"); ok {
		for name, idVal := range m.All() {
			id, ok := idVal.(bencode.BInt)
			if !ok || id <= 0 || id > 255 {
				continue
			}
			h.M[name] = id.Int64()
		}
	}
	if v, ok := d.GetString("v"); ok {
		h.V = v.String()
	}
	if p, ok := d.GetInt("p"); ok {
		h.Port = p.Int64()
	}
	if size, ok := d.GetInt("metadata_size"); ok {
		h.MetadataSize = size.Int64()
	}
	if reqq, ok := d.GetInt("reqq"); ok {
		h.Reqq = reqq.Int64()
	}
	return h, nil
}

type MetadataMsgType int64

const (
	MetadataRequest MetadataMsgType = 0
	MetadataData    MetadataMsgType = 1
	MetadataReject  MetadataMsgType = 2
)

// MetadataMessage is a ut_metadata message: a bencoded dictionary, followed
// by the raw piece bytes for data messages.
type MetadataMessage struct {
	Type      MetadataMsgType
	Piece     int64
	TotalSize int64
	Data      []byte
}

func (m *MetadataMessage) Serialize() []byte {
	d := bencode.NewDict()
	d.AddInt("msg_type", int64(m.Type))
	d.AddInt("piece", m.Piece)
	if m.Type == MetadataData {
		d.AddInt("total_size", m.TotalSize)
	}
	return append(bencode.Encode(d), m.Data...)
}

func ParseMetadataMessage(body []byte) (*MetadataMessage, error) {
	v, n, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("metadata message: %w", err)
	}
	d, ok := v.(*bencode.BDict)
	if !ok {
		return nil, errors.New("metadata message is not a dictionary")
	}

	msgType, ok := d.GetInt("msg_type")
	if !ok {
		return nil, errors.New("metadata message missing msg_type")
	}
	piece, ok := d.GetInt("piece")
	if !ok || piece < 0 {
		return nil, errors.New("metadata message missing piece")
	}

	m := &MetadataMessage{Type: MetadataMsgType(msgType), Piece: piece.Int64()}
	switch m.Type {
	case MetadataData:
		size, ok := d.GetInt("total_size")
		if !ok {
			return nil, errors.New("metadata data message missing total_size")
		}
		m.TotalSize = size.Int64()
		m.Data = body[n:]
	case MetadataRequest, MetadataReject:
		if n != len(body) {
			return nil, fmt.Errorf("metadata message type %d carries %d trailing bytes", m.Type, len(body)-n)
		}
	default:
		return nil, fmt.Errorf("unknown metadata message type %d", m.Type)
	}
	return m, nil
}
