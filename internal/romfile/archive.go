package romfile

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/zstd"
	"github.com/nwaples/rardecode/v2"
)

func fromZIP(path string) ([]byte, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isROMName(f.Name) {
			continue
		}
		return readMember(f.Name, f.Open)
	}
	return nil, "", ErrNoROMFile
}

func from7z(path string) ([]byte, string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isROMName(f.Name) {
			continue
		}
		return readMember(f.Name, f.Open)
	}
	return nil, "", ErrNoROMFile
}

func readMember(name string, open func() (io.ReadCloser, error)) ([]byte, string, error) {
	rc, err := open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := limitedRead(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", name, err)
	}
	return data, filepath.Base(name), nil
}

func fromRAR(r io.Reader) ([]byte, string, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("open rar: %w", err)
	}
	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil, "", ErrNoROMFile
		}
		if err != nil {
			return nil, "", fmt.Errorf("rar entry: %w", err)
		}
		if h.IsDir || !isROMName(h.Name) {
			continue
		}
		data, err := limitedRead(rr)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", h.Name, err)
		}
		return data, filepath.Base(h.Name), nil
	}
}

// fromGzip handles both a single gzipped image and a gzipped tarball.
func fromGzip(r io.Reader, path string) ([]byte, string, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("open gzip: %w", err)
	}
	defer gr.Close()

	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return fromTar(gr)
	}
	data, err := limitedRead(gr)
	if err != nil {
		return nil, "", fmt.Errorf("gunzip: %w", err)
	}
	return data, stripExt(filepath.Base(path), ".gz"), nil
}

func fromTar(r io.Reader) ([]byte, string, error) {
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, "", ErrNoROMFile
		}
		if err != nil {
			return nil, "", fmt.Errorf("tar entry: %w", err)
		}
		if h.Typeflag != tar.TypeReg || !isROMName(h.Name) {
			continue
		}
		data, err := limitedRead(tr)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", h.Name, err)
		}
		return data, filepath.Base(h.Name), nil
	}
}

func fromZstd(r io.Reader, path string) ([]byte, string, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("open zstd: %w", err)
	}
	defer zr.Close()
	data, err := limitedRead(zr)
	if err != nil {
		return nil, "", fmt.Errorf("unzstd: %w", err)
	}
	return data, stripExt(filepath.Base(path), ".zst"), nil
}
