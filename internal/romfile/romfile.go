// Package romfile loads Game Boy cartridge images from disk, raw or packed in
// a zip, 7z, gzip, tar.gz, RAR, or zstd archive.
package romfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNoROMFile         = errors.New("romfile: no ROM file found in archive")
	ErrUnsupportedFormat = errors.New("romfile: unsupported file format")
	ErrFileTooLarge      = errors.New("romfile: file exceeds maximum size limit")
	ErrTooSmall          = errors.New("romfile: image smaller than a cartridge header")
)

// MaxSize bounds every read, archive member or not.
const MaxSize = 8 << 20

// Extensions are the cartridge image extensions looked for inside archives.
var Extensions = []string{".gb", ".gbc"}

var (
	magicZIP      = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEmpty = []byte{0x50, 0x4B, 0x05, 0x06}
	magic7z       = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip     = []byte{0x1F, 0x8B}
	magicRAR      = []byte("Rar!")
	magicZstd     = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

type format int

const (
	formatUnknown format = iota
	formatRaw
	formatZIP
	format7z
	formatGzip
	formatRAR
	formatZstd
)

// ROM is a loaded cartridge image.
type ROM struct {
	// Name is the base name of the image file, inside the archive if any.
	Name string
	Data []byte
	Header
}

// Load reads the cartridge at path. Archives are detected by magic bytes
// first and by extension second; the first member with a cartridge
// extension is used.
func Load(path string) (ROM, error) {
	f, err := os.Open(path)
	if err != nil {
		return ROM{}, err
	}
	defer f.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return ROM{}, fmt.Errorf("romfile: read header: %w", err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ROM{}, fmt.Errorf("romfile: seek: %w", err)
	}

	var (
		data []byte
		name string
	)
	switch detect(head, path) {
	case formatRaw:
		data, err = limitedRead(f)
		name = filepath.Base(path)
	case formatZIP:
		data, name, err = fromZIP(path)
	case format7z:
		data, name, err = from7z(path)
	case formatGzip:
		data, name, err = fromGzip(f, path)
	case formatRAR:
		data, name, err = fromRAR(f)
	case formatZstd:
		data, name, err = fromZstd(f, path)
	default:
		return ROM{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return ROM{}, fmt.Errorf("romfile: %s: %w", filepath.Base(path), err)
	}
	h, err := ParseHeader(data)
	if err != nil {
		return ROM{}, fmt.Errorf("romfile: %s: %w", name, err)
	}
	return ROM{Name: name, Data: data, Header: h}, nil
}

func detect(head []byte, path string) format {
	switch {
	case bytes.HasPrefix(head, magicZIP), bytes.HasPrefix(head, magicZIPEmpty):
		return formatZIP
	case bytes.HasPrefix(head, magicRAR):
		return formatRAR
	case bytes.HasPrefix(head, magic7z):
		return format7z
	case bytes.HasPrefix(head, magicZstd):
		return formatZstd
	case bytes.HasPrefix(head, magicGzip):
		return formatGzip
	}

	lower := strings.ToLower(path)
	switch filepath.Ext(lower) {
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	case ".zst":
		return formatZstd
	}
	if isROMName(lower) {
		return formatRaw
	}
	return formatUnknown
}

func isROMName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func limitedRead(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// stripExt drops a trailing compression suffix from an image name.
func stripExt(name string, exts ...string) string {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
