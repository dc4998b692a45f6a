package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"torrent-bencode/internal/bencode"
)

const HashSize = sha1.Size

type File struct {
	Length int64
	Path   []string
}

type TorrentMeta struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate time.Time

	Name        string
	PieceLength int64
	Length      int64
	Files       []File
	Private     bool

	Pieces    [][]byte
	InfoBytes []byte
	InfoHash  [HashSize]byte
}

func ParseTorrent(data []byte, opts ...bencode.DecoderOption) (*TorrentMeta, error) {

	dec := bencode.NewDecoder(data, opts...)

	root, spans, err := dec.DecodeDictFieldSpans()
	if err != nil {
		return nil, fmt.Errorf("torrent file: %w", err)
	}

	meta := &TorrentMeta{}

	if announce, ok := root.GetString("announce"); ok {
		meta.Announce = announce.String()
	}
	if tiers, ok := root.GetList("announce-list"); ok {
		meta.AnnounceList, err = parseAnnounceList(tiers)
		if err != nil {
			return nil, err
		}
	}

	if comment, ok := root.GetString("comment"); ok {
		meta.Comment = comment.String()
	}
	if createdBy, ok := root.GetString("created by"); ok {
		meta.CreatedBy = createdBy.String()
	}
	if date, ok := root.GetInt("creation date"); ok {
		meta.CreationDate = time.Unix(date.Int64(), 0).UTC()
	}

	infoDict, ok := root.GetDict("info")
	if !ok {
		return nil, errors.New("missing info dictionary")
	}

	if err := meta.parseInfo(infoDict); err != nil {
		return nil, err
	}

	meta.InfoBytes = spans["info"]
	meta.InfoHash = sha1.Sum(meta.InfoBytes)

	return meta, nil

}

// ParseInfo builds a TorrentMeta from a bare info dictionary, as fetched
// from peers with the metadata extension. Tracker fields stay empty.
func ParseInfo(infoBytes []byte, opts ...bencode.DecoderOption) (*TorrentMeta, error) {
	dec := bencode.NewDecoder(infoBytes, opts...)
	infoDict, raw, err := dec.DecodeDictWithSpan()
	if err != nil {
		return nil, fmt.Errorf("info dictionary: %w", err)
	}

	meta := &TorrentMeta{}
	if err := meta.parseInfo(infoDict); err != nil {
		return nil, err
	}
	meta.InfoBytes = raw
	meta.InfoHash = sha1.Sum(raw)
	return meta, nil
}

func parseAnnounceList(tiers *bencode.BList) ([][]string, error) {
	var out [][]string
	for i, v := range tiers.All() {
		tier, ok := v.(*bencode.BList)
		if !ok {
			return nil, fmt.Errorf("announce-list tier %d is a %s", i, v.Kind())
		}
		var urls []string
		for j := range tier.Len() {
			u, ok := tier.GetString(j)
			if !ok {
				return nil, fmt.Errorf("announce-list tier %d entry %d is not a string", i, j)
			}
			urls = append(urls, u.String())
		}
		if len(urls) > 0 {
			out = append(out, urls)
		}
	}
	return out, nil
}

func (m *TorrentMeta) parseInfo(info *bencode.BDict) error {
	name, ok := info.GetString("name")
	if !ok {
		return errors.New("info: missing name")
	}
	m.Name = name.String()

	pieceLength, ok := info.GetInt("piece length")
	if !ok || pieceLength <= 0 {
		return errors.New("info: missing or invalid piece length")
	}
	m.PieceLength = pieceLength.Int64()

	if private, ok := info.GetInt("private"); ok {
		m.Private = private == 1
	}

	length, hasLength := info.GetInt("length")
	files, hasFiles := info.GetList("files")
	switch {
	case hasLength && hasFiles:
		return errors.New("info: both length and files present")
	case hasLength:
		if length < 0 {
			return errors.New("info: negative length")
		}
		m.Length = length.Int64()
	case hasFiles:
		parsed, err := parseFiles(files)
		if err != nil {
			return err
		}
		m.Files = parsed
	default:
		return errors.New("info: missing length or files")
	}

	piecesRaw, ok := info.GetString("pieces")
	if !ok {
		return errors.New("info: missing pieces")
	}
	if piecesRaw.Len()%HashSize != 0 {
		return errors.New("invalid pieces length")
	}

	raw := piecesRaw.Bytes()
	m.Pieces = nil
	for i := 0; i < len(raw); i += HashSize {
		m.Pieces = append(m.Pieces, raw[i:i+HashSize])
	}

	if want := m.expectedPieces(); int64(len(m.Pieces)) != want {
		return fmt.Errorf("info: %d piece hashes for %d pieces", len(m.Pieces), want)
	}
	return nil
}

func parseFiles(files *bencode.BList) ([]File, error) {
	var out []File
	var total int64
	for i := range files.Len() {
		entry, ok := files.GetDict(i)
		if !ok {
			return nil, fmt.Errorf("info: file %d is not a dictionary", i)
		}
		length, ok := entry.GetInt("length")
		if !ok || length < 0 {
			return nil, fmt.Errorf("info: file %d has no valid length", i)
		}
		pathList, ok := entry.GetList("path")
		if !ok || pathList.Len() == 0 {
			return nil, fmt.Errorf("info: file %d has no path", i)
		}
		var path []string
		for j := range pathList.Len() {
			elem, ok := pathList.GetString(j)
			if !ok {
				return nil, fmt.Errorf("info: file %d path element %d is not a string", i, j)
			}
			path = append(path, elem.String())
		}
		if length.Int64() > math.MaxInt64-total {
			return nil, fmt.Errorf("info: file %d pushes total length past 64 bits", i)
		}
		total += length.Int64()
		out = append(out, File{Length: length.Int64(), Path: path})
	}
	return out, nil
}

// TotalLength is the content size in bytes, summed over files for
// multi-file torrents.
func (m *TorrentMeta) TotalLength() int64 {
	if len(m.Files) == 0 {
		return m.Length
	}
	var total int64
	for _, f := range m.Files {
		total += f.Length
	}
	return total
}

func (m *TorrentMeta) expectedPieces() int64 {
	total := m.TotalLength()
	n := total / m.PieceLength
	if total%m.PieceLength != 0 {
		n++
	}
	return n
}

// PieceSize returns the length of piece index; only the last piece may be
// shorter than PieceLength.
func (m *TorrentMeta) PieceSize(index int) int64 {
	begin := int64(index) * m.PieceLength
	end := begin + m.PieceLength
	if total := m.TotalLength(); end > total {
		return total - begin
	}
	return m.PieceLength
}

// InfoDict rebuilds the info dictionary from the parsed fields.
func (m *TorrentMeta) InfoDict() *bencode.BDict {
	info := bencode.NewDict()
	info.AddText("name", m.Name)
	info.AddInt("piece length", m.PieceLength)

	var pieces []byte
	for _, p := range m.Pieces {
		pieces = append(pieces, p...)
	}
	info.AddBytes("pieces", pieces)

	if len(m.Files) > 0 {
		files := bencode.NewList()
		for _, f := range m.Files {
			entry := bencode.NewDict()
			entry.AddInt("length", f.Length)
			path := bencode.NewList()
			for _, elem := range f.Path {
				path.AddText(elem)
			}
			entry.Add("path", path)
			files.Add(entry)
		}
		info.Add("files", files)
	} else {
		info.AddInt("length", m.Length)
	}

	if m.Private {
		info.AddInt("private", 1)
	}
	return info
}

// Dict builds the full torrent dictionary. A parsed InfoBytes is reused as
// the info value so fields this package does not model are kept; its key
// order is canonicalized, so use Encode to write the file.
func (m *TorrentMeta) Dict() *bencode.BDict {
	root := m.topLevel()
	var info bencode.Value = m.InfoDict()
	if len(m.InfoBytes) > 0 {
		if raw, err := bencode.Unmarshal(m.InfoBytes); err == nil {
			info = raw
		}
	}
	root.Add("info", info)
	return root
}

// topLevel holds every root field except info.
func (m *TorrentMeta) topLevel() *bencode.BDict {
	root := bencode.NewDict()
	if m.Announce != "" {
		root.AddText("announce", m.Announce)
	}
	if len(m.AnnounceList) > 0 {
		tiers := bencode.NewList()
		for _, tier := range m.AnnounceList {
			urls := bencode.NewList()
			for _, u := range tier {
				urls.AddText(u)
			}
			tiers.Add(urls)
		}
		root.Add("announce-list", tiers)
	}
	if m.Comment != "" {
		root.AddText("comment", m.Comment)
	}
	if m.CreatedBy != "" {
		root.AddText("created by", m.CreatedBy)
	}
	if !m.CreationDate.IsZero() {
		root.AddInt("creation date", m.CreationDate.Unix())
	}
	return root
}

// Encode returns the torrent file. A parsed InfoBytes is written back
// verbatim, so the info hash survives even when the info dictionary was not
// canonical.
func (m *TorrentMeta) Encode() []byte {
	if len(m.InfoBytes) == 0 {
		return bencode.Encode(m.Dict())
	}
	// "info" sorts after every top-level key.
	out := bencode.Encode(m.topLevel())
	out = append(out[:len(out)-1], "4:info"...)
	out = append(out, m.InfoBytes...)
	return append(out, 'e')
}

// DisplayPath joins a multi-file path with slashes.
func (f File) DisplayPath() string {
	return strings.Join(f.Path, "/")
}
