// Package catalog keeps the set of torrents known to the service, keyed by
// the hex form of their info hash.
package catalog

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/metainfo"
	"torrent-bencode/internal/tracker"
)

var (
	ErrExists   = errors.New("torrent already exists in catalog")
	ErrNotFound = errors.New("torrent not found")
)

type Torrent struct {
	Meta    *metainfo.TorrentMeta
	AddedAt time.Time

	// raw is the torrent file as it was added. It is what gets persisted,
	// so a reload yields the same info hash.
	raw []byte

	// Filled in by Announce.
	peers        int
	seeders      int64
	leechers     int64
	lastAnnounce time.Time
}

type TorrentStats struct {
	Name         string    `json:"name"`
	InfoHash     string    `json:"infoHash"`
	TotalLength  int64     `json:"totalLength"`
	PieceLength  int64     `json:"pieceLength"`
	Pieces       int       `json:"pieces"`
	Files        int       `json:"files"`
	Private      bool      `json:"private"`
	Announce     string    `json:"announce"`
	Peers        int       `json:"peers"`
	Seeders      int64     `json:"seeders"`
	Leechers     int64     `json:"leechers"`
	AddedAt      time.Time `json:"addedAt"`
	LastAnnounce time.Time `json:"lastAnnounce,omitzero"`
}

type Manager struct {
	mu       sync.RWMutex
	torrents map[string]*Torrent

	// saveMu orders Save calls; it is taken before mu.
	saveMu sync.Mutex

	logger  *slog.Logger
	decOpts []bencode.DecoderOption
	now     func() time.Time
}

// NewManager returns an empty catalog. A nil logger discards output. The
// decoder options guard parsing of added and loaded torrents.
func NewManager(logger *slog.Logger, opts ...bencode.DecoderOption) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		torrents: make(map[string]*Torrent),
		logger:   logger,
		decOpts:  opts,
		now:      time.Now,
	}
}

// HashKey is the catalog key for an info hash.
func HashKey(infoHash [metainfo.HashSize]byte) string {
	return hex.EncodeToString(infoHash[:])
}

func (m *Manager) AddTorrent(torrentData []byte) (TorrentStats, error) {
	meta, err := metainfo.ParseTorrent(torrentData, m.decOpts...)
	if err != nil {
		return TorrentStats{}, fmt.Errorf("failed to parse torrent: %w", err)
	}

	t := &Torrent{
		Meta:    meta,
		AddedAt: m.now().UTC().Truncate(time.Second),
		raw:     slices.Clone(torrentData),
	}
	key := HashKey(meta.InfoHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.torrents[key]; exists {
		return TorrentStats{}, fmt.Errorf("%s: %w", key, ErrExists)
	}
	m.torrents[key] = t

	m.logger.Info("torrent added", "name", meta.Name, "info_hash", key, "size", meta.TotalLength())
	return t.stats(), nil
}

func (m *Manager) restore(raw []byte, addedAt time.Time) (*Torrent, error) {
	meta, err := metainfo.ParseTorrent(raw, m.decOpts...)
	if err != nil {
		return nil, err
	}
	return &Torrent{Meta: meta, AddedAt: addedAt, raw: raw}, nil
}

func (m *Manager) Remove(hash string) error {
	key := strings.ToLower(hash)

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.torrents[key]
	if !ok {
		return fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	delete(m.torrents, key)

	m.logger.Info("torrent removed", "name", t.Meta.Name, "info_hash", key)
	return nil
}

func (m *Manager) Get(hash string) (*metainfo.TorrentMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.torrents[strings.ToLower(hash)]
	if !ok {
		return nil, false
	}
	return t.Meta, true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.torrents)
}

// GetStats returns one entry per torrent, ordered by name then info hash.
func (m *Manager) GetStats() []TorrentStats {
	m.mu.RLock()
	allStats := make([]TorrentStats, 0, len(m.torrents))
	for _, t := range m.torrents {
		allStats = append(allStats, t.stats())
	}
	m.mu.RUnlock()

	slices.SortFunc(allStats, func(a, b TorrentStats) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.InfoHash, b.InfoHash)
	})
	return allStats
}

// Announce contacts the torrent's tracker and records the swarm counts it
// reports.
func (m *Manager) Announce(ctx context.Context, hash string, client *tracker.Client, peerID [20]byte) (TorrentStats, error) {
	meta, ok := m.Get(hash)
	if !ok {
		return TorrentStats{}, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}

	resp, err := client.Announce(ctx, meta, peerID)
	if err != nil {
		m.logger.Warn("announce failed", "name", meta.Name, "tracker", meta.Announce, "error", err)
		return TorrentStats{}, err
	}
	if resp.Warning != "" {
		m.logger.Warn("tracker warning", "name", meta.Name, "warning", resp.Warning)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.torrents[strings.ToLower(hash)]
	if !ok {
		return TorrentStats{}, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	t.peers = len(resp.Peers)
	t.seeders = resp.Complete
	t.leechers = resp.Incomplete
	t.lastAnnounce = m.now().UTC()

	m.logger.Debug("announced", "name", meta.Name, "peers", t.peers, "interval", resp.Interval)
	return t.stats(), nil
}

func (t *Torrent) stats() TorrentStats {
	return TorrentStats{
		Name:         t.Meta.Name,
		InfoHash:     HashKey(t.Meta.InfoHash),
		TotalLength:  t.Meta.TotalLength(),
		PieceLength:  t.Meta.PieceLength,
		Pieces:       len(t.Meta.Pieces),
		Files:        max(len(t.Meta.Files), 1),
		Private:      t.Meta.Private,
		Announce:     t.Meta.Announce,
		Peers:        t.peers,
		Seeders:      t.seeders,
		Leechers:     t.leechers,
		AddedAt:      t.AddedAt,
		LastAnnounce: t.lastAnnounce,
	}
}
