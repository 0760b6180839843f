// Package statefile stores emulator save-state blobs on disk. Written files
// are zstd streams holding a JSON header line followed by the raw blob;
// Read also accepts an uncompressed blob as written by other tools.
package statefile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// maxBlob bounds decompressed reads so a corrupt stream cannot balloon.
const maxBlob = 64 << 20

var magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}

var ErrCorrupt = errors.New("statefile: corrupt file")

type Header struct {
	Version  int    `json:"version"`
	ROMTitle string `json:"rom_title,omitempty"`
	Episode  int    `json:"episode,omitempty"`
	Step     int    `json:"step,omitempty"`
	Size     int    `json:"size"`
}

// Write stores blob at path, replacing any existing file atomically.
func Write(path string, h Header, blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, h, blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encode(w io.Writer, h Header, blob []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	h.Version = Version
	h.Size = len(blob)
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(blob); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read loads a save state. For uncompressed files the header only carries
// the blob size.
func Read(path string) (Header, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, err
	}
	if !bytes.HasPrefix(raw, magicZstd) {
		return Header{Size: len(raw)}, raw, nil
	}

	dec, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderMaxMemory(maxBlob))
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != Version {
		return h, nil, fmt.Errorf("statefile: unsupported version %d", h.Version)
	}
	if h.Size < 0 || h.Size > maxBlob {
		return h, nil, fmt.Errorf("%w: size %d", ErrCorrupt, h.Size)
	}
	blob := make([]byte, h.Size)
	if _, err := io.ReadFull(br, blob); err != nil {
		return h, nil, fmt.Errorf("%w: body: %v", ErrCorrupt, err)
	}
	return h, blob, nil
}
