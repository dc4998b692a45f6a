package bencode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-bencode/internal/bencode"
)

const iterationCount = 128

func requireRoundtrip(t *testing.T, v bencode.Value) {
	t.Helper()
	encoded := bencode.Encode(v)
	decoded, n, err := bencode.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	assert.True(t, bencode.Equal(v, decoded))
	assert.Equal(t, string(encoded), string(bencode.Encode(decoded)))
}

func TestListAppend(t *testing.T) {
	list := bencode.NewList()
	for i := 1; i <= iterationCount; i++ {
		assert.Equal(t, i, list.AddInt(int64(i)))
	}
	list.Add(bencode.NewDict())

	for i := 1; i <= iterationCount; i++ {
		n, ok := list.GetInt(i - 1)
		require.True(t, ok)
		assert.EqualValues(t, i, n)
		_, ok = list.GetString(i - 1)
		assert.False(t, ok)
		_, ok = list.GetList(i - 1)
		assert.False(t, ok)
		_, ok = list.GetDict(i - 1)
		assert.False(t, ok)
	}
	_, ok := list.GetInt(iterationCount)
	assert.False(t, ok)
	_, ok = list.GetDict(iterationCount)
	assert.True(t, ok)
	_, ok = list.Get(-1)
	assert.False(t, ok)
	requireRoundtrip(t, list)

	removed, ok := list.Remove(iterationCount)
	require.True(t, ok)
	assert.Equal(t, bencode.KindDict, removed.Kind())
	_, ok = list.Remove(0)
	assert.True(t, ok)
	_, ok = list.Remove(iterationCount + 13)
	assert.False(t, ok)

	assert.Equal(t, iterationCount-1, list.Len())
	first, _ := list.GetInt(0)
	assert.EqualValues(t, 2, first)
	last, _ := list.GetInt(iterationCount - 2)
	assert.EqualValues(t, iterationCount, last)
	requireRoundtrip(t, list)
}

func TestListRawStrings(t *testing.T) {
	var list bencode.BList
	list.AddBytes([]byte("a\x82"))
	list.AddBytes([]byte("a\x82")[:1])
	list.AddBytes([]byte("x\x00y"))

	raw, ok := list.GetString(0)
	require.True(t, ok)
	assert.Equal(t, []byte("a\x82"), raw.Bytes())
	assert.Equal(t, "2:a\x82", string(bencode.Encode(raw)))
	_, err := raw.Text()
	assert.ErrorIs(t, err, bencode.ErrInvalidUTF8)

	raw, ok = list.GetString(1)
	require.True(t, ok)
	assert.Equal(t, "1:a", string(bencode.Encode(raw)))

	raw, ok = list.GetString(2)
	require.True(t, ok)
	assert.Equal(t, 3, raw.Len())
	assert.Equal(t, "3:x\x00y", string(bencode.Encode(raw)))

	requireRoundtrip(t, &list)
}

func TestListText(t *testing.T) {
	list := bencode.NewList(bencode.NewText("ä€"), bencode.NewInt(-7))
	assert.Equal(t, "l5:\xC3\xA4\xE2\x82\xACi-7ee", string(bencode.Encode(list)))

	s, ok := list.GetString(0)
	require.True(t, ok)
	text, err := s.Text()
	require.NoError(t, err)
	assert.Equal(t, "ä€", text)
}

func TestListBytesAreCopied(t *testing.T) {
	buf := []byte("abc")
	list := bencode.NewList()
	list.AddBytes(buf)
	buf[0] = 'z'

	s, _ := list.GetString(0)
	assert.Equal(t, "abc", s.String())

	out := s.Bytes()
	out[0] = 'q'
	assert.Equal(t, "abc", s.String())
}

func TestListAll(t *testing.T) {
	list := bencode.NewList(bencode.NewInt(1), bencode.NewInt(2), bencode.NewInt(3))
	var sum int64
	for i, v := range list.All() {
		if i == 2 {
			break
		}
		sum += v.(bencode.BInt).Int64()
	}
	assert.EqualValues(t, 3, sum)
}

func TestListAddNilPanics(t *testing.T) {
	assert.Panics(t, func() {
		bencode.NewList().Add(nil)
	})
}
