package catalog

import (
	"fmt"
	"time"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/storage"
)

// The catalog is stored as one bencoded dictionary:
//
//	d8:torrentsd<hex hash>d5:addedi<unix>e7:torrent<raw file>eee
const (
	keyTorrents = "torrents"
	keyAdded    = "added"
	keyTorrent  = "torrent"
)

// Dict snapshots the catalog as a bencode dictionary.
func (m *Manager) Dict() *bencode.BDict {
	torrents := bencode.NewDict()

	m.mu.RLock()
	for key, t := range m.torrents {
		entry := bencode.NewDict()
		entry.AddInt(keyAdded, t.AddedAt.Unix())
		entry.AddBytes(keyTorrent, t.raw)
		torrents.Add(key, entry)
	}
	m.mu.RUnlock()

	root := bencode.NewDict()
	root.Add(keyTorrents, torrents)
	return root
}

// Save writes the catalog to path through storage, so a .zst path is
// compressed.
//
// Concurrent saves are serialized with the snapshot taken inside the lock,
// so the file last written always holds the newest snapshot.
func (m *Manager) Save(path string) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	root := m.Dict()
	if err := storage.Save(path, root); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	m.logger.Debug("catalog saved", "path", path)
	return nil
}

// Load adds every torrent stored at path. Entries already present are kept
// as they are. The file is validated completely first: on error nothing is
// added.
func (m *Manager) Load(path string) error {
	v, err := storage.Load(path, m.decOpts...)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	root, ok := v.(*bencode.BDict)
	if !ok {
		return fmt.Errorf("loading catalog %s: root is a %s, want dictionary", path, v.Kind())
	}
	torrents, ok := root.GetDict(keyTorrents)
	if !ok {
		return fmt.Errorf("loading catalog %s: missing %q", path, keyTorrents)
	}

	pending := make(map[string]*Torrent, torrents.Len())
	for key, value := range torrents.All() {
		entry, ok := value.(*bencode.BDict)
		if !ok {
			return fmt.Errorf("loading catalog %s: entry %s is not a dictionary", path, key)
		}
		raw, ok := entry.GetString(keyTorrent)
		if !ok {
			return fmt.Errorf("loading catalog %s: entry %s has no torrent", path, key)
		}
		added, _ := entry.GetInt(keyAdded)

		t, err := m.restore(raw.Bytes(), time.Unix(added.Int64(), 0).UTC())
		if err != nil {
			return fmt.Errorf("loading catalog %s: entry %s: %w", path, key, err)
		}
		if HashKey(t.Meta.InfoHash) != key {
			return fmt.Errorf("loading catalog %s: entry %s has info hash %s", path, key, HashKey(t.Meta.InfoHash))
		}
		pending[key] = t
	}

	loaded := 0
	m.mu.Lock()
	for key, t := range pending {
		if _, exists := m.torrents[key]; !exists {
			m.torrents[key] = t
			loaded++
		}
	}
	m.mu.Unlock()

	m.logger.Info("catalog loaded", "path", path, "torrents", loaded)
	return nil
}
