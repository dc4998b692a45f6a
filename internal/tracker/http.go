package tracker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/metainfo"
)

const (
	DefaultPort    = 6881
	DefaultTimeout = 15 * time.Second

	// MaxInterval caps the reannounce intervals a tracker may ask for.
	MaxInterval = 7 * 24 * time.Hour

	// Tracker replies are small; anything larger is not a tracker.
	maxResponseSize = 4 << 20
)

// ErrNoTracker is returned for torrents that name no tracker, such as those
// fetched from peers without one.
var ErrNoTracker = errors.New("torrent has no tracker")

type Peer struct {
	IP   net.IP
	Port uint16
	ID   []byte
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

type Response struct {
	Interval    time.Duration
	MinInterval time.Duration
	Complete    int64
	Incomplete  int64
	Warning     string
	TrackerID   string
	Peers       []Peer
}

// FailureError is a tracker reply carrying a "failure reason".
type FailureError struct {
	Reason string
}

func (e *FailureError) Error() string {
	return "tracker error: " + e.Reason
}

func GeneratePeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:8], "-TB0001-")
	_, err := rand.Read(id[8:])
	return id, err
}

func escapeBytes(b []byte) string {
	var out strings.Builder
	for _, v := range b {
		fmt.Fprintf(&out, "%%%02X", v)
	}
	return out.String()
}

func BuildAnnounceURL(meta *metainfo.TorrentMeta, peerID [20]byte, port uint16) (string, error) {
	announce := meta.Announce
	if announce == "" && len(meta.AnnounceList) > 0 {
		announce = meta.AnnounceList[0][0]
	}
	if announce == "" {
		return "", ErrNoTracker
	}

	u, err := url.Parse(announce)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported tracker scheme %q", u.Scheme)
	}

	q := u.Query()

	q.Set("port", strconv.Itoa(int(port)))
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", strconv.FormatInt(meta.TotalLength(), 10))
	q.Set("compact", "1")

	rawQuery := q.Encode()
	if rawQuery != "" {
		rawQuery += "&"
	}

	// info_hash and peer_id are raw bytes and must be escaped byte by byte.
	rawQuery += fmt.Sprintf("info_hash=%s&peer_id=%s",
		escapeBytes(meta.InfoHash[:]),
		escapeBytes(peerID[:]),
	)

	u.RawQuery = rawQuery
	return u.String(), nil
}

// ParseResponse decodes a bencoded announce reply. Both the compact peer
// string and the list-of-dictionaries form are accepted.
func ParseResponse(body []byte) (*Response, error) {
	val, err := bencode.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("tracker response: %w", err)
	}

	respDict, ok := val.(*bencode.BDict)
	if !ok {
		return nil, fmt.Errorf("tracker response is a %s, not a dictionary", val.Kind())
	}

	if fail, ok := respDict.GetString("failure reason"); ok {
		return nil, &FailureError{Reason: fail.String()}
	}

	resp := &Response{}
	if resp.Interval, err = interval(respDict, "interval"); err != nil {
		return nil, err
	}
	if resp.MinInterval, err = interval(respDict, "min interval"); err != nil {
		return nil, err
	}
	if n, ok := respDict.GetInt("complete"); ok {
		resp.Complete = n.Int64()
	}
	if n, ok := respDict.GetInt("incomplete"); ok {
		resp.Incomplete = n.Int64()
	}
	if warning, ok := respDict.GetString("warning message"); ok {
		resp.Warning = warning.String()
	}
	if id, ok := respDict.GetString("tracker id"); ok {
		resp.TrackerID = id.String()
	}

	peersVal, ok := respDict.Get("peers")
	if !ok {
		return nil, errors.New("tracker response missing peers")
	}

	switch peers := peersVal.(type) {
	case bencode.BString:
		resp.Peers, err = parseCompactPeers(peers.Bytes())
	case *bencode.BList:
		resp.Peers, err = parsePeerList(peers)
	default:
		err = fmt.Errorf("invalid peers format: %s", peersVal.Kind())
	}
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// interval reads a reannounce interval in seconds. Values past MaxInterval
// are clamped to it.
func interval(d *bencode.BDict, key string) (time.Duration, error) {
	n, ok := d.GetInt(key)
	if !ok {
		return 0, nil
	}
	if n < 0 {
		return 0, fmt.Errorf("tracker response: negative %s %d", key, n)
	}
	if n.Int64() > int64(MaxInterval/time.Second) {
		return MaxInterval, nil
	}
	return time.Duration(n) * time.Second, nil
}

func parseCompactPeers(peersRaw []byte) ([]Peer, error) {
	if len(peersRaw)%6 != 0 {
		return nil, fmt.Errorf("compact peers length %d is not a multiple of 6", len(peersRaw))
	}

	var peers []Peer

	for i := 0; i+6 <= len(peersRaw); i += 6 {
		ip := net.IP(peersRaw[i : i+4])
		port := binary.BigEndian.Uint16(peersRaw[i+4 : i+6])

		peers = append(peers, Peer{
			IP:   ip,
			Port: port,
		})
	}

	return peers, nil
}

func parsePeerList(list *bencode.BList) ([]Peer, error) {
	var peers []Peer
	for i := range list.Len() {
		entry, ok := list.GetDict(i)
		if !ok {
			return nil, fmt.Errorf("peer %d is not a dictionary", i)
		}
		ipStr, ok := entry.GetString("ip")
		if !ok {
			return nil, fmt.Errorf("peer %d missing ip", i)
		}
		ip := net.ParseIP(ipStr.String())
		if ip == nil {
			return nil, fmt.Errorf("peer %d has invalid ip %q", i, ipStr.String())
		}
		port, ok := entry.GetInt("port")
		if !ok || port < 0 || port > 65535 {
			return nil, fmt.Errorf("peer %d has invalid port", i)
		}
		p := Peer{IP: ip, Port: uint16(port)}
		if id, ok := entry.GetString("peer id"); ok {
			p.ID = id.Bytes()
		}
		peers = append(peers, p)
	}
	return peers, nil
}

type Client struct {
	HTTP *http.Client
	Port uint16
}

func NewClient(timeout time.Duration, port uint16) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: timeout},
		Port: port,
	}
}

func (c *Client) Announce(ctx context.Context, meta *metainfo.TorrentMeta, peerID [20]byte) (*Response, error) {
	url, err := BuildAnnounceURL(meta, peerID, c.Port)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	return ParseResponse(body)
}

func GetPeers(ctx context.Context, meta *metainfo.TorrentMeta) ([]Peer, error) {
	peerID, err := GeneratePeerID()
	if err != nil {
		return nil, err
	}

	resp, err := NewClient(DefaultTimeout, DefaultPort).Announce(ctx, meta, peerID)
	if err != nil {
		return nil, err
	}
	return resp.Peers, nil
}
