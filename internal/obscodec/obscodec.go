// Package obscodec packs observation tensors into the string form carried by
// OBS messages.
package obscodec

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// U8 is the raw row-major uint8 tensor, base64 encoded.
	U8 = "U8"
	// ZSTDU8 is the same tensor zstd-compressed before base64.
	ZSTDU8 = "ZSTD_U8"

	// MaxObsBytes bounds a decoded tensor; a full-resolution four-channel
	// frame is well under it.
	MaxObsBytes = 1 << 20
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxObsBytes))
	})
	return encoder, decoder, codecErr
}

// Normalize maps the empty encoding to U8 and rejects unknown names.
func Normalize(encoding string) (string, error) {
	switch encoding {
	case "", U8:
		return U8, nil
	case ZSTDU8:
		return ZSTDU8, nil
	default:
		return "", fmt.Errorf("unknown obs encoding %q", encoding)
	}
}

func Encode(obs []byte, encoding string) (string, error) {
	enc, err := Normalize(encoding)
	if err != nil {
		return "", err
	}
	if enc == U8 {
		return base64.StdEncoding.EncodeToString(obs), nil
	}
	zw, _, err := codecs()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(zw.EncodeAll(obs, make([]byte, 0, len(obs)/4))), nil
}

// Decode reverses Encode. n is the expected tensor length; a payload of any
// other length is an error. A negative n skips the length check. Compressed
// payloads never inflate past MaxObsBytes.
func Decode(s, encoding string, n int) ([]byte, error) {
	enc, err := Normalize(encoding)
	if err != nil {
		return nil, err
	}
	if n > MaxObsBytes {
		return nil, fmt.Errorf("obs length %d over limit %d", n, MaxObsBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("obs base64: %w", err)
	}
	if enc == ZSTDU8 {
		_, zr, err := codecs()
		if err != nil {
			return nil, err
		}
		raw, err = zr.DecodeAll(raw, make([]byte, 0, max(n, 0)))
		if err != nil {
			return nil, fmt.Errorf("obs zstd: %w", err)
		}
	}
	if n >= 0 && len(raw) != n {
		return nil, fmt.Errorf("obs length %d, want %d", len(raw), n)
	}
	return raw, nil
}
