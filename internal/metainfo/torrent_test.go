package metainfo_test

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/metainfo"
)

func pieceHashes(n int) [][]byte {
	var out [][]byte
	for i := range n {
		out = append(out, bytes.Repeat([]byte{byte('a' + i)}, metainfo.HashSize))
	}
	return out
}

func TestRoundtripSingleFile(t *testing.T) {
	want := &metainfo.TorrentMeta{
		Announce:     "http://tracker.example/announce",
		AnnounceList: [][]string{{"http://tracker.example/announce"}, {"udp://backup.example:80"}},
		Comment:      "test",
		CreatedBy:    "torrent-bencode",
		CreationDate: time.Unix(1700000000, 0).UTC(),
		Name:         "file.bin",
		PieceLength:  16384,
		Length:       40000,
		Pieces:       pieceHashes(3),
	}

	data := want.Encode()
	got, err := metainfo.ParseTorrent(data)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(metainfo.TorrentMeta{}, "InfoBytes", "InfoHash")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	infoBytes := bencode.Encode(want.InfoDict())
	assert.Equal(t, infoBytes, got.InfoBytes)
	assert.Equal(t, sha1.Sum(infoBytes), got.InfoHash)
	assert.Equal(t, data, got.Encode())
}

func TestRoundtripMultiFile(t *testing.T) {
	want := &metainfo.TorrentMeta{
		Announce:    "http://tracker.example/announce",
		Name:        "album",
		PieceLength: 32,
		Files: []metainfo.File{
			{Length: 40, Path: []string{"cd1", "01.flac"}},
			{Length: 10, Path: []string{"cover.jpg"}},
		},
		Private: true,
		Pieces:  pieceHashes(2),
	}

	got, err := metainfo.ParseTorrent(want.Encode())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(metainfo.TorrentMeta{}, "InfoBytes", "InfoHash")); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 50, got.TotalLength())
	assert.EqualValues(t, 32, got.PieceSize(0))
	assert.EqualValues(t, 18, got.PieceSize(1))
	assert.Equal(t, "cd1/01.flac", got.Files[0].DisplayPath())
}

func TestInfoHashUsesRawSpan(t *testing.T) {
	// Unsorted info keys are accepted, and the hash covers the bytes as
	// they appear in the file rather than the canonical re-encoding.
	info := "d4:name1:x6:lengthi3e12:piece lengthi4e6:pieces20:" + string(bytes.Repeat([]byte{'p'}, 20)) + "e"
	data := []byte("d8:announce4:http4:info" + info + "e")

	meta, err := metainfo.ParseTorrent(data)
	require.NoError(t, err)
	assert.Equal(t, info, string(meta.InfoBytes))
	assert.Equal(t, sha1.Sum([]byte(info)), meta.InfoHash)

	fromInfo, err := metainfo.ParseInfo([]byte(info))
	require.NoError(t, err)
	assert.Equal(t, meta.InfoHash, fromInfo.InfoHash)
	assert.Equal(t, "x", fromInfo.Name)

	// Writing the torrent back keeps the info bytes as they were.
	written := meta.Encode()
	assert.Equal(t, data, written)
	reparsed, err := metainfo.ParseTorrent(written)
	require.NoError(t, err)
	assert.Equal(t, meta.InfoHash, reparsed.InfoHash)
}

func TestTrackerlessTorrent(t *testing.T) {
	info := "d6:lengthi3e4:name1:x12:piece lengthi4e6:pieces20:" + string(bytes.Repeat([]byte{'p'}, 20)) + "e"
	fromInfo, err := metainfo.ParseInfo([]byte(info))
	require.NoError(t, err)

	data := fromInfo.Encode()
	assert.Equal(t, "d4:info"+info+"e", string(data))

	meta, err := metainfo.ParseTorrent(data)
	require.NoError(t, err)
	assert.Empty(t, meta.Announce)
	assert.Empty(t, meta.AnnounceList)
	assert.Equal(t, fromInfo.InfoHash, meta.InfoHash)
}

func TestFileLengthOverflow(t *testing.T) {
	file := func(length int64, name string) string {
		return fmt.Sprintf("d6:lengthi%de4:pathl%d:%see", length, len(name), name)
	}
	pieces := "6:pieces20:" + string(bytes.Repeat([]byte{'p'}, 20))
	data := "d8:announce1:u4:infod5:filesl" +
		file(math.MaxInt64, "a") + file(math.MaxInt64, "b") + file(3, "c") +
		"e4:name1:x12:piece lengthi4e" + pieces + "ee"

	meta, err := metainfo.ParseTorrent([]byte(data))
	assert.ErrorContains(t, err, "64 bits")
	assert.Nil(t, meta)

	// One file at the maximum is fine; rounding up the piece count must not
	// overflow either.
	data = "d8:announce1:u4:infod5:filesl" + file(math.MaxInt64, "a") +
		"e4:name1:x12:piece lengthi" + fmt.Sprint(int64(math.MaxInt64)) + "e" + pieces + "ee"
	meta, err = metainfo.ParseTorrent([]byte(data))
	require.NoError(t, err)
	assert.EqualValues(t, int64(math.MaxInt64), meta.TotalLength())
	assert.Equal(t, int64(math.MaxInt64), meta.PieceSize(0))
}

func TestParseTorrentErrors(t *testing.T) {
	pieces := "6:pieces20:" + string(bytes.Repeat([]byte{'p'}, 20))
	testDefs := []struct {
		name string
		data string
	}{
		{"not bencode", "hello"},
		{"not a dictionary", "li1ee"},
		{"missing info", "d8:announce1:ue"},
		{"info not a dict", "d8:announce1:u4:infoi1ee"},
		{"missing name", "d8:announce1:u4:infod6:lengthi1e12:piece lengthi1e" + pieces + "ee"},
		{"missing piece length", "d8:announce1:u4:infod6:lengthi1e4:name1:x" + pieces + "ee"},
		{"missing length", "d8:announce1:u4:infod4:name1:x12:piece lengthi1e" + pieces + "ee"},
		{"bad pieces length", "d8:announce1:u4:infod6:lengthi1e4:name1:x12:piece lengthi1e6:pieces3:abcee"},
		{"piece count mismatch", "d8:announce1:u4:infod6:lengthi99e4:name1:x12:piece lengthi1e" + pieces + "ee"},
		{"bad announce-list", "d13:announce-listli1ee4:infod6:lengthi1e4:name1:x12:piece lengthi1e" + pieces + "ee"},
	}
	for _, test := range testDefs {
		t.Run(test.name, func(t *testing.T) {
			meta, err := metainfo.ParseTorrent([]byte(test.data))
			assert.Error(t, err)
			assert.Nil(t, meta)
		})
	}
}
