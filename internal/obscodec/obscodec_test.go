package obscodec

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	obs := make([]byte, 72*80*4)
	for i := range obs {
		obs[i] = byte(i / 97)
	}
	for _, enc := range []string{"", U8, ZSTDU8} {
		s, err := Encode(obs, enc)
		if err != nil {
			t.Fatalf("%q: Encode: %v", enc, err)
		}
		got, err := Decode(s, enc, len(obs))
		if err != nil {
			t.Fatalf("%q: Decode: %v", enc, err)
		}
		if !bytes.Equal(got, obs) {
			t.Fatalf("%q: decoded tensor differs", enc)
		}
	}

	plain, _ := Encode(obs, U8)
	packed, _ := Encode(obs, ZSTDU8)
	if len(packed) >= len(plain) {
		t.Fatalf("zstd payload not smaller: %d >= %d", len(packed), len(plain))
	}
	if plain != base64.StdEncoding.EncodeToString(obs) {
		t.Fatalf("U8 must be plain base64")
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Encode([]byte{1}, "PNG"); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
	if _, err := Decode("!!", U8, 1); err == nil {
		t.Fatalf("expected base64 error")
	}
	s, _ := Encode([]byte{1, 2, 3}, U8)
	if _, err := Decode(s, U8, 4); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := Decode(s, ZSTDU8, 3); err == nil {
		t.Fatalf("expected zstd error on raw payload")
	}
}

func TestDecode_CapsInflatedPayload(t *testing.T) {
	huge := make([]byte, 8<<20)
	s, err := Encode(huge, ZSTDU8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(s, ZSTDU8, -1); err == nil {
		t.Fatalf("expected error inflating %d bytes past %d", len(huge), MaxObsBytes)
	}
	if _, err := Decode(s, ZSTDU8, len(huge)); err == nil {
		t.Fatalf("expected error for length over limit")
	}

	big := make([]byte, MaxObsBytes/2)
	s, _ = Encode(big, ZSTDU8)
	got, err := Decode(s, ZSTDU8, -1)
	if err != nil {
		t.Fatalf("Decode under limit: %v", err)
	}
	if len(got) != len(big) {
		t.Fatalf("length: got %d want %d", len(got), len(big))
	}
}
