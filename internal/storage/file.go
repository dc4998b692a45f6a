package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"torrent-bencode/internal/bencode"
)

// Files whose name ends in CompressedExt are stored zstd-compressed.
const CompressedExt = ".zst"

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func compressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

// ReadFile returns the bytes stored at path, decompressing .zst files.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !compressed(path) {
		return data, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress %s: %w", path, err)
	}
	return out, nil
}

// WriteFile replaces path atomically: data goes to a temporary file in the
// same directory, which is then renamed over the target.
func WriteFile(path string, data []byte) error {
	if compressed(path) {
		data = zstdEncoder.EncodeAll(data, nil)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads and decodes the single bencoded value stored at path.
func Load(path string, opts ...bencode.DecoderOption) (bencode.Value, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := bencode.Unmarshal(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func Save(path string, v bencode.Value) error {
	return WriteFile(path, bencode.Encode(v))
}
