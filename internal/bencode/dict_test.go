package bencode_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-bencode/internal/bencode"
)

func TestDictAppendAscending(t *testing.T) {
	dict := bencode.NewDict()
	for i := 1; i <= iterationCount; i++ {
		key := fmt.Sprintf("%04d", i)
		assert.Equal(t, i, dict.AddInt(key, int64(i)))

		_, ok := dict.GetInt(key)
		assert.True(t, ok)
		_, ok = dict.GetString(key)
		assert.False(t, ok)
		_, ok = dict.GetList(key)
		assert.False(t, ok)
		_, ok = dict.GetDict(key)
		assert.False(t, ok)
	}
	n, ok := dict.GetInt("0123")
	require.True(t, ok)
	assert.EqualValues(t, 123, n)
	requireRoundtrip(t, dict)
}

func TestDictAppendDescending(t *testing.T) {
	dict := bencode.NewDict()
	for i := iterationCount; i > 0; i-- {
		key := fmt.Sprintf("%04d", i)
		dict.Add(key, bencode.NewInt(int64(i)))
		assert.Equal(t, iterationCount+1-i, dict.Len())
		_, ok := dict.GetInt(key)
		assert.True(t, ok)
	}
	n, ok := dict.GetInt("0123")
	require.True(t, ok)
	assert.EqualValues(t, 123, n)

	keys := dict.Keys()
	assert.Equal(t, "0001", keys[0])
	assert.Equal(t, fmt.Sprintf("%04d", iterationCount), keys[len(keys)-1])
	requireRoundtrip(t, dict)
}

func TestDictSortedReplaceRemove(t *testing.T) {
	dict := bencode.NewDict()
	dict.AddInt("ab", 1)
	dict.AddInt("KL", 2)
	dict.AddInt("gh", 3)
	dict.AddInt("YZ", 4)
	assert.Equal(t, 4, dict.AddInt("ab", 5))
	assert.Equal(t, "d2:KLi2e2:YZi4e2:abi5e2:ghi3ee", string(bencode.Encode(dict)))

	removed, ok := dict.Remove("gh")
	require.True(t, ok)
	assert.EqualValues(t, 3, removed)
	_, ok = dict.Remove("YZ")
	assert.True(t, ok)
	_, ok = dict.Remove("missing")
	assert.False(t, ok)
	assert.Equal(t, "d2:KLi2e2:abi5ee", string(bencode.Encode(dict)))
}

func TestDictRawStrings(t *testing.T) {
	dict := bencode.NewDict()
	dict.AddBytes("1", []byte("a\x82"))
	dict.AddBytes("2", []byte("a\x82")[:1])
	dict.AddText("3", "spam")

	raw, ok := dict.GetString("1")
	require.True(t, ok)
	assert.Equal(t, "2:a\x82", string(bencode.Encode(raw)))

	raw, ok = dict.GetString("2")
	require.True(t, ok)
	assert.Equal(t, "1:a", string(bencode.Encode(raw)))

	_, ok = dict.GetString("4")
	assert.False(t, ok)
	assert.Equal(t, "d1:12:a\x821:21:a1:34:spame", string(bencode.Encode(dict)))
}

func TestDictBinaryKeys(t *testing.T) {
	dict := bencode.NewDict()
	dict.AddInt("\xff", 1)
	dict.AddInt("\x00", 2)
	dict.AddInt("", 3)
	dict.AddInt("a\x00", 4)
	dict.AddInt("a", 5)
	assert.Equal(t, []string{"", "\x00", "a", "a\x00", "\xff"}, dict.Keys())
	requireRoundtrip(t, dict)
}

func TestDictNested(t *testing.T) {
	inner := bencode.NewList()
	inner.AddText("x")
	sub := bencode.NewDict()
	sub.Add("list", inner)

	root := bencode.NewDict()
	root.Add("sub", sub)

	got, ok := root.GetDict("sub")
	require.True(t, ok)
	l, ok := got.GetList("list")
	require.True(t, ok)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "d3:subd4:listl1:xeee", string(bencode.Encode(root)))
}

func TestDictAll(t *testing.T) {
	dict := bencode.NewDict()
	dict.AddInt("b", 2)
	dict.AddInt("c", 3)
	dict.AddInt("a", 1)

	var keys []string
	for k, v := range dict.All() {
		keys = append(keys, k)
		assert.Equal(t, bencode.KindInt, v.Kind())
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestDictAddRemoveRoundtrip(t *testing.T) {
	dict := bencode.NewDict()
	for i := 0; i < 64; i++ {
		dict.AddInt(fmt.Sprintf("k%d", i*7%64), int64(i))
	}
	for i := 0; i < 64; i += 3 {
		_, ok := dict.Remove(fmt.Sprintf("k%d", i))
		assert.True(t, ok)
	}
	keys := dict.Keys()
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
	requireRoundtrip(t, dict)
}
