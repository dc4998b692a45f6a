package peer

import (
	"crypto/sha1"
	"fmt"

	"torrent-bencode/internal/metainfo"
)

// MetadataAssembler collects ut_metadata pieces into the info dictionary
// of a torrent.
type MetadataAssembler struct {
	InfoHash [20]byte
	Buffer   []byte

	have     []bool
	received int
}

func NewMetadataAssembler(infoHash [20]byte, size int64) (*MetadataAssembler, error) {
	if size <= 0 || size > MaxMetadataSize {
		return nil, fmt.Errorf("invalid metadata size %d", size)
	}
	pieces := (size + MetadataPieceSize - 1) / MetadataPieceSize
	return &MetadataAssembler{
		InfoHash: infoHash,
		Buffer:   make([]byte, size),
		have:     make([]bool, pieces),
	}, nil
}

func (a *MetadataAssembler) NumPieces() int {
	return len(a.have)
}

func (a *MetadataAssembler) pieceLength(index int) int {
	begin := index * MetadataPieceSize
	end := begin + MetadataPieceSize
	if end > len(a.Buffer) {
		return len(a.Buffer) - begin
	}
	return MetadataPieceSize
}

// AddPiece copies a data message into the buffer. Repeated pieces are
// ignored.
func (a *MetadataAssembler) AddPiece(msg *MetadataMessage) error {
	if msg.Type != MetadataData {
		return fmt.Errorf("metadata piece %d: message type %d carries no data", msg.Piece, msg.Type)
	}
	if msg.TotalSize != int64(len(a.Buffer)) {
		return fmt.Errorf("metadata piece %d: total size %d, expected %d", msg.Piece, msg.TotalSize, len(a.Buffer))
	}
	if msg.Piece < 0 || msg.Piece >= int64(len(a.have)) {
		return fmt.Errorf("metadata piece %d out of range", msg.Piece)
	}

	index := int(msg.Piece)
	if len(msg.Data) != a.pieceLength(index) {
		return fmt.Errorf("metadata piece %d: %d bytes, expected %d", index, len(msg.Data), a.pieceLength(index))
	}
	if a.have[index] {
		return nil
	}

	copy(a.Buffer[index*MetadataPieceSize:], msg.Data)
	a.have[index] = true
	a.received++
	return nil
}

func (a *MetadataAssembler) Done() bool {
	return a.received == len(a.have)
}

// Info checks the assembled bytes against the info hash and parses them.
func (a *MetadataAssembler) Info() (*metainfo.TorrentMeta, error) {
	if !a.Done() {
		return nil, fmt.Errorf("metadata incomplete: %d of %d pieces", a.received, len(a.have))
	}
	if hash := sha1.Sum(a.Buffer); hash != a.InfoHash {
		return nil, fmt.Errorf("metadata failed hash check: got %x", hash)
	}
	return metainfo.ParseInfo(a.Buffer)
}
