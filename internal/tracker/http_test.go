package tracker_test

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/metainfo"
	"torrent-bencode/internal/tracker"
)

func compactReply() []byte {
	reply := bencode.NewDict()
	reply.AddInt("interval", 1800)
	reply.AddInt("complete", 4)
	reply.AddInt("incomplete", 2)
	reply.AddBytes("peers", []byte{10, 0, 0, 1, 0x1A, 0xE1, 192, 168, 1, 2, 0x1F, 0x90})
	return bencode.Encode(reply)
}

func TestParseResponseCompact(t *testing.T) {
	resp, err := tracker.ParseResponse(compactReply())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	assert.EqualValues(t, 4, resp.Complete)
	assert.EqualValues(t, 2, resp.Incomplete)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "10.0.0.1:6881", resp.Peers[0].String())
	assert.Equal(t, "192.168.1.2:8080", resp.Peers[1].String())
}

func TestParseResponseDictPeers(t *testing.T) {
	peer := bencode.NewDict()
	peer.AddText("ip", "2001:db8::1")
	peer.AddInt("port", 51413)
	peer.AddBytes("peer id", []byte("-XX0001-abcdefghijkl"))

	reply := bencode.NewDict()
	reply.AddInt("interval", 60)
	reply.AddText("warning message", "slow down")
	reply.Add("peers", bencode.NewList(peer))

	resp, err := tracker.ParseResponse(bencode.Encode(reply))
	require.NoError(t, err)
	assert.Equal(t, "slow down", resp.Warning)
	require.Len(t, resp.Peers, 1)
	assert.True(t, resp.Peers[0].IP.Equal(net.ParseIP("2001:db8::1")))
	assert.EqualValues(t, 51413, resp.Peers[0].Port)
	assert.Equal(t, []byte("-XX0001-abcdefghijkl"), resp.Peers[0].ID)
}

func TestParseResponseErrors(t *testing.T) {
	_, err := tracker.ParseResponse([]byte("d14:failure reason9:forbiddene"))
	var failure *tracker.FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "forbidden", failure.Reason)

	for _, body := range []string{
		"",
		"li1ee",
		"d8:intervali5ee",
		"d5:peersi5ee",
		"d5:peers5:abcdee",
		"d5:peersli1eee",
		"d5:peersld4:porti1eeee",
		"d5:peersld2:ip3:bad4:porti1eeee",
		"d5:peersld2:ip7:1.2.3.44:porti70000eeee",
	} {
		_, err := tracker.ParseResponse([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func testMeta(announce string) *metainfo.TorrentMeta {
	meta := &metainfo.TorrentMeta{
		Announce:    announce,
		Name:        "x",
		PieceLength: 16,
		Length:      100,
	}
	meta.InfoHash[0] = 0xAB
	meta.InfoHash[19] = 0x01
	return meta
}

func TestBuildAnnounceURL(t *testing.T) {
	var peerID [20]byte
	copy(peerID[:], "-TB0001-000000000000")

	raw, err := tracker.BuildAnnounceURL(testMeta("http://tracker.example/announce?key=1"), peerID, 6881)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://tracker.example/announce?"))
	assert.Contains(t, raw, "info_hash=%AB%00%00")
	assert.Contains(t, raw, "peer_id=%2D%54%42")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "1", q.Get("key"))
	assert.Equal(t, "100", q.Get("left"))
	assert.Equal(t, "6881", q.Get("port"))
	assert.Equal(t, "1", q.Get("compact"))

	_, err = tracker.BuildAnnounceURL(testMeta("udp://tracker.example:80"), peerID, 6881)
	assert.Error(t, err)
}

func TestBuildAnnounceURLNoTracker(t *testing.T) {
	var peerID [20]byte
	_, err := tracker.BuildAnnounceURL(testMeta(""), peerID, 6881)
	assert.ErrorIs(t, err, tracker.ErrNoTracker)

	_, err = tracker.NewClient(time.Second, 6881).Announce(context.Background(), testMeta(""), peerID)
	assert.ErrorIs(t, err, tracker.ErrNoTracker)
}

func TestParseResponseIntervals(t *testing.T) {
	reply := func(key string, n int64) []byte {
		d := bencode.NewDict()
		d.AddInt(key, n)
		d.AddBytes("peers", nil)
		return bencode.Encode(d)
	}

	resp, err := tracker.ParseResponse(reply("interval", math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, tracker.MaxInterval, resp.Interval)

	resp, err = tracker.ParseResponse(reply("min interval", 1<<40))
	require.NoError(t, err)
	assert.Equal(t, tracker.MaxInterval, resp.MinInterval)

	resp, err = tracker.ParseResponse(reply("interval", 0))
	require.NoError(t, err)
	assert.Zero(t, resp.Interval)

	_, err = tracker.ParseResponse(reply("interval", -1))
	assert.ErrorContains(t, err, "negative interval")
	_, err = tracker.ParseResponse(reply("min interval", math.MinInt64))
	assert.ErrorContains(t, err, "negative min interval")
}

func TestClientAnnounce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("compact") != "1" {
			http.Error(w, "compact required", http.StatusBadRequest)
			return
		}
		w.Write(compactReply())
	}))
	defer srv.Close()

	peerID, err := tracker.GeneratePeerID()
	require.NoError(t, err)
	assert.Equal(t, "-TB0001-", string(peerID[:8]))

	client := tracker.NewClient(5*time.Second, 6881)
	resp, err := client.Announce(context.Background(), testMeta(srv.URL+"/announce"), peerID)
	require.NoError(t, err)
	assert.Len(t, resp.Peers, 2)

	peers, err := tracker.GetPeers(context.Background(), testMeta(srv.URL+"/announce"))
	require.NoError(t, err)
	assert.Len(t, peers, 2)
}

func TestClientAnnounceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var peerID [20]byte
	_, err := tracker.NewClient(time.Second, 6881).Announce(context.Background(), testMeta(srv.URL), peerID)
	assert.ErrorContains(t, err, "503")
}
