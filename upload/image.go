package upload

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
)

// erased flash reads as 0xff, so padding with it leaves unused bytes as-is.
const erasedByte = 0xff

// LoadImage reads a flash image starting at address 0. Intel HEX files are
// flattened, gaps filled with 0xff; anything else is taken as raw binary.
func LoadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		return parseHex(data)
	}
	return data, nil
}

func parseHex(data []byte) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing Intel HEX: %w", err)
	}
	var end uint32
	for _, seg := range mem.GetDataSegments() {
		if e := seg.Address + uint32(len(seg.Data)); e > end {
			end = e
		}
	}
	if end == 0 {
		return nil, errors.New("Intel HEX file holds no data")
	}
	return mem.ToBinary(0, end, erasedByte), nil
}

// PadImage extends image to a whole number of pages.
func PadImage(image []byte, pageSize int) []byte {
	if rem := len(image) % pageSize; rem != 0 {
		image = append(image, bytes.Repeat([]byte{erasedByte}, pageSize-rem)...)
	}
	return image
}

// PrepareImage loads and pads the image for p, checking it fits in flash.
func PrepareImage(path string, p Profile) ([]byte, error) {
	image, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	if len(image) > p.FlashSize {
		return nil, fmt.Errorf("image is %d bytes, board %s has %d bytes of flash", len(image), p.Board, p.FlashSize)
	}
	return PadImage(image, p.PageSize), nil
}
