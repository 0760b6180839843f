package romfile

import (
	"fmt"
	"strings"
)

const (
	headerTitle    = 0x134
	headerCGB      = 0x143
	headerCartType = 0x147
	headerROMSize  = 0x148
	headerChecksum = 0x14D
	headerEnd      = 0x150
)

// Header is the subset of the cartridge header the environment reports.
type Header struct {
	Title    string
	CGB      bool
	CartType uint8
	// Banks is the number of 16KB ROM banks the header declares.
	Banks int
	// ChecksumOK reports whether the header checksum at 0x14D matches.
	ChecksumOK bool
}

func ParseHeader(rom []byte) (Header, error) {
	if len(rom) < headerEnd {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(rom))
	}
	title := rom[headerTitle:headerCGB]
	if i := strings.IndexByte(string(title), 0); i >= 0 {
		title = title[:i]
	}
	h := Header{
		Title:    strings.TrimSpace(string(title)),
		CGB:      rom[headerCGB]&0x80 != 0,
		CartType: rom[headerCartType],
	}
	if s := rom[headerROMSize]; s <= 8 {
		h.Banks = 2 << s
	}
	var sum uint8
	for _, b := range rom[headerTitle:headerChecksum] {
		sum = sum - b - 1
	}
	h.ChecksumOK = sum == rom[headerChecksum]
	return h, nil
}
