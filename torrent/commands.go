package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"torrent-bencode/internal/api"
	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/catalog"
	"torrent-bencode/internal/config"
	"torrent-bencode/internal/convert"
	"torrent-bencode/internal/metainfo"
	"torrent-bencode/internal/peer"
	"torrent-bencode/internal/storage"
	"torrent-bencode/internal/tracker"
)

func runInspect(env *environment, args []string) error {
	flagSet := newFlagSet(env, "inspect")
	maxDepth := flagSet.Int("max-depth", bencode.DefaultMaxDepth, "nesting limit while decoding (0 for none)")
	rest, err := parseArgs(flagSet, args, "FILE")
	if err != nil {
		return err
	}

	data, err := storage.ReadFile(rest[0])
	if err != nil {
		return err
	}
	meta, err := metainfo.ParseTorrent(data, bencode.WithMaxDepth(*maxDepth))
	if err != nil {
		return fmt.Errorf("%s: %w", rest[0], err)
	}

	w := env.stdout
	fmt.Fprintln(w, "Name:", meta.Name)
	fmt.Fprintln(w, "Tracker:", meta.Announce)
	for i, tier := range meta.AnnounceList {
		fmt.Fprintf(w, "Tier %d: %v\n", i, tier)
	}
	if meta.Comment != "" {
		fmt.Fprintln(w, "Comment:", meta.Comment)
	}
	if meta.CreatedBy != "" {
		fmt.Fprintln(w, "Created by:", meta.CreatedBy)
	}
	if !meta.CreationDate.IsZero() {
		fmt.Fprintln(w, "Created:", meta.CreationDate.Format(time.RFC3339))
	}
	fmt.Fprintln(w, "Private:", meta.Private)
	fmt.Fprintln(w, "Piece length:", meta.PieceLength)
	fmt.Fprintln(w, "Total size:", meta.TotalLength())
	fmt.Fprintln(w, "Pieces:", len(meta.Pieces))
	fmt.Fprintf(w, "Info hash: %x\n", meta.InfoHash)
	for _, f := range meta.Files {
		fmt.Fprintf(w, "  %s (%d)\n", f.DisplayPath(), f.Length)
	}
	return nil
}

// writeOutput writes to path through storage, or to stdout when path is
// empty.
func writeOutput(env *environment, path string, data []byte) error {
	if path == "" {
		_, err := env.stdout.Write(data)
		return err
	}
	return storage.WriteFile(path, data)
}

func runDecode(env *environment, args []string) error {
	flagSet := newFlagSet(env, "decode")
	format := flagSet.StringP("format", "f", "json", "output format: json, yaml or cbor")
	output := flagSet.StringP("output", "o", "", "write to this file instead of stdout")
	maxDepth := flagSet.Int("max-depth", bencode.DefaultMaxDepth, "nesting limit while decoding (0 for none)")
	strict := flagSet.Bool("strict", false, "reject dictionaries whose keys are not sorted")
	rest, err := parseArgs(flagSet, args, "FILE")
	if err != nil {
		return err
	}

	opts := []bencode.DecoderOption{bencode.WithMaxDepth(*maxDepth)}
	if *strict {
		opts = append(opts, bencode.WithStrictKeys())
	}
	v, err := storage.Load(rest[0], opts...)
	if err != nil {
		return err
	}

	var out []byte
	switch *format {
	case "json":
		out, err = convert.ToJSON(v)
	case "yaml":
		out, err = convert.ToYAML(v)
	case "cbor":
		out, err = convert.ToCBOR(v)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	return writeOutput(env, *output, out)
}

func runEncode(env *environment, args []string) error {
	flagSet := newFlagSet(env, "encode")
	output := flagSet.StringP("output", "o", "", "write to this file instead of stdout (.zst compresses)")
	rest, err := parseArgs(flagSet, args, "FILE")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return err
	}
	v, err := convert.FromJSON(data)
	if err != nil {
		return fmt.Errorf("%s: %w", rest[0], err)
	}
	return writeOutput(env, *output, bencode.Encode(v))
}

func runAnnounce(env *environment, args []string) error {
	flagSet := newFlagSet(env, "announce")
	port := flagSet.Uint16("port", tracker.DefaultPort, "port reported to the tracker")
	timeout := flagSet.Duration("timeout", tracker.DefaultTimeout, "tracker request timeout")
	rest, err := parseArgs(flagSet, args, "FILE")
	if err != nil {
		return err
	}

	data, err := storage.ReadFile(rest[0])
	if err != nil {
		return err
	}
	meta, err := metainfo.ParseTorrent(data)
	if err != nil {
		return fmt.Errorf("%s: %w", rest[0], err)
	}
	peerID, err := tracker.GeneratePeerID()
	if err != nil {
		return fmt.Errorf("could not generate peer ID: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	resp, err := tracker.NewClient(*timeout, *port).Announce(ctx, meta, peerID)
	if err != nil {
		return err
	}

	w := env.stdout
	if resp.Warning != "" {
		fmt.Fprintln(w, "Warning:", resp.Warning)
	}
	fmt.Fprintln(w, "Interval:", resp.Interval)
	fmt.Fprintf(w, "Seeders: %d, leechers: %d\n", resp.Complete, resp.Incomplete)
	fmt.Fprintln(w, "Peers:")
	for _, p := range resp.Peers {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

func runMetadata(env *environment, args []string) error {
	flagSet := newFlagSet(env, "metadata")
	output := flagSet.StringP("output", "o", "", "write the .torrent here instead of stdout")
	announce := flagSet.String("tracker", "", "announce URL to put in the written torrent")
	timeout := flagSet.Duration("timeout", 30*time.Second, "overall timeout")
	rest, err := parseArgs(flagSet, args, "INFOHASH", "ADDR")
	if err != nil {
		return err
	}

	var infoHash [20]byte
	raw, err := hex.DecodeString(rest[0])
	if err != nil || len(raw) != len(infoHash) {
		return fmt.Errorf("info hash must be 40 hex characters, got %q", rest[0])
	}
	copy(infoHash[:], raw)

	peerID, err := tracker.GeneratePeerID()
	if err != nil {
		return fmt.Errorf("could not generate peer ID: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	conn, err := peer.Dial(ctx, rest[1], infoHash, peerID)
	if err != nil {
		return err
	}
	defer conn.Close()

	meta, err := conn.FetchMetadata(ctx)
	if err != nil {
		return err
	}
	meta.Announce = *announce
	fmt.Fprintf(env.stderr, "fetched %q (%d bytes of metadata) from %s\n", meta.Name, len(meta.InfoBytes), rest[1])
	return writeOutput(env, *output, meta.Encode())
}

func runServe(env *environment, args []string) error {
	flagSet := newFlagSet(env, "serve")
	configPath := flagSet.String("config", "", "YAML configuration file")
	listen := flagSet.StringP("listen", "l", "", "address to listen on (overrides config)")
	if _, err := parseArgs(flagSet, args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()

	logger := slog.New(slog.NewTextHandler(env.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	manager := catalog.NewManager(logger, cfg.DecoderOptions()...)
	if cfg.CatalogPath != "" {
		if err := manager.Load(cfg.CatalogPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			logger.Info("starting with an empty catalog", "path", cfg.CatalogPath)
		}
	}

	peerID, err := tracker.GeneratePeerID()
	if err != nil {
		return fmt.Errorf("could not generate peer ID: %w", err)
	}

	server := api.NewServer(manager, logger)
	server.MaxBodyBytes = cfg.MaxBodyBytes
	server.DecoderOpts = cfg.DecoderOptions()
	server.CatalogPath = cfg.CatalogPath
	server.Tracker = tracker.NewClient(cfg.TrackerTimeout, uint16(cfg.PeerPort))
	server.PeerID = peerID

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.ListenAndServe(ctx, cfg.Listen)
}
