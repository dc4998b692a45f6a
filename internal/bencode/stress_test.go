package bencode_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-bencode/internal/bencode"
)

func randBytes(r *rand.Rand, maxLen int) []byte {
	b := make([]byte, r.IntN(maxLen))
	for i := range b {
		b[i] = byte(33 + r.IntN(174-33))
	}
	return b
}

func randText(r *rand.Rand, maxLen int) string {
	runes := make([]rune, r.IntN(maxLen))
	for i := range runes {
		runes[i] = rune(33 + r.IntN(174-33))
	}
	return string(runes)
}

// buildRandomTree opens a new dict or list with 5% probability each, closes
// the current container with 8% and otherwise adds an integer, raw string or
// text string.
func buildRandomTree(r *rand.Rand, steps int) *bencode.BDict {
	root := bencode.NewDict()
	var stack []bencode.Value
	current := bencode.Value(root)

	add := func(v bencode.Value) {
		switch c := current.(type) {
		case *bencode.BList:
			c.Add(v)
		case *bencode.BDict:
			c.Add(string(randBytes(r, 64)), v)
		}
	}

	for range steps {
		n := r.IntN(100)
		switch {
		case n < 5:
			d := bencode.NewDict()
			add(d)
			stack = append(stack, d)
			current = d
		case n < 10:
			l := bencode.NewList()
			add(l)
			stack = append(stack, l)
			current = l
		case n < 18:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				current = root
				if len(stack) > 0 {
					current = stack[len(stack)-1]
				}
			}
		case n < 18+24:
			add(bencode.NewInt(r.Int64() - r.Int64()))
		case n < 18+24+24:
			add(bencode.NewBytes(randBytes(r, 64)))
		default:
			add(bencode.NewText(randText(r, 64)))
		}
	}
	return root
}

func TestStressRoundtrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 4 {
		tree := buildRandomTree(r, 10000)

		first := bencode.Encode(tree)
		decoded, err := bencode.Unmarshal(first, bencode.WithMaxDepth(0))
		require.NoError(t, err)
		second := bencode.Encode(decoded)

		assert.Equal(t, first, second)
		assert.True(t, bencode.Equal(tree, decoded))
	}
}
