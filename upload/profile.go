package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
)

// Protocol selects a bootloader strategy.
type Protocol string

const (
	STK500v1 Protocol = "stk500v1"
	STK500v2 Protocol = "stk500v2"
)

// ParseProtocol accepts the tags used in boards.txt ("arduino", "wiring")
// as well as the protocol names.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stk500v1", "stk500", "arduino":
		return STK500v1, nil
	case "stk500v2", "wiring":
		return STK500v2, nil
	}
	return "", fmt.Errorf("unsupported upload protocol %q", s)
}

// USBID is a USB vendor/product pair in hex, without a 0x prefix.
type USBID struct {
	VID string
	PID string
}

// ParseUSBID parses "2341:0043".
func ParseUSBID(s string) (USBID, error) {
	vid, pid, ok := strings.Cut(s, ":")
	if !ok {
		return USBID{}, fmt.Errorf("bad USB id %q, want VID:PID", s)
	}
	return USBID{VID: normHex(vid), PID: normHex(pid)}, nil
}

func (id USBID) String() string { return id.VID + ":" + id.PID }

// Matches compares case-insensitively, ignoring any 0x prefix.
func (id USBID) Matches(vid, pid string) bool {
	return id.VID == normHex(vid) && id.PID == normHex(pid)
}

func normHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

// Profile describes how to flash one board.
type Profile struct {
	Board     string
	Protocol  Protocol
	Baud      int
	PageSize  int
	FlashSize int
	USB       []USBID
	// BoardsTxtID is the board's key prefix in boards.txt.
	BoardsTxtID string
}

// Profiles maps board names to profiles.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in boards.
func DefaultProfiles() Profiles {
	return Profiles{
		"uno": {
			Board:       "uno",
			Protocol:    STK500v1,
			Baud:        115200,
			PageSize:    128,
			FlashSize:   32256,
			USB:         []USBID{{"2341", "0043"}, {"2a03", "0043"}},
			BoardsTxtID: "uno",
		},
		"mega2560": {
			Board:       "mega2560",
			Protocol:    STK500v2,
			Baud:        115200,
			PageSize:    256,
			FlashSize:   253952,
			USB:         []USBID{{"2341", "0010"}, {"2341", "0042"}},
			BoardsTxtID: "mega.menu.cpu.atmega2560",
		},
	}
}

// Lookup returns the profile for board.
func (ps Profiles) Lookup(board string) (Profile, error) {
	p, ok := ps[board]
	if !ok {
		return Profile{}, fmt.Errorf("no upload profile for board %q", board)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile is usable.
func (p Profile) Validate() error {
	if _, err := ParseProtocol(string(p.Protocol)); err != nil {
		return fmt.Errorf("board %s: %w", p.Board, err)
	}
	switch {
	case p.Baud <= 0:
		return fmt.Errorf("board %s: baud rate must be positive", p.Board)
	case p.PageSize <= 0 || p.PageSize%2 != 0:
		return fmt.Errorf("board %s: page size %d must be a positive even number", p.Board, p.PageSize)
	case p.FlashSize <= 0:
		return fmt.Errorf("board %s: flash size must be positive", p.Board)
	}
	return nil
}

// BoardsTxtPath is where an Arduino installation keeps AVR board definitions.
func BoardsTxtPath(toolchainHome string) string {
	return filepath.Join(toolchainHome, "hardware", "arduino", "avr", "boards.txt")
}

// LoadBoardsTxt reads an Arduino boards.txt file.
func LoadBoardsTxt(path string) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}

// WithToolchainHome overlays the boards.txt under home, if present.
func (ps Profiles) WithToolchainHome(home string) (Profiles, error) {
	if home == "" {
		return ps, nil
	}
	props, err := LoadBoardsTxt(BoardsTxtPath(home))
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("no boards.txt under %s", home)
		return ps, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(Profiles, len(ps))
	for name, p := range ps {
		if out[name], err = p.ApplyBoardsTxt(props); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ApplyBoardsTxt overrides protocol, speed and maximum size from boards.txt.
// Keys under a menu selection ("mega.menu.cpu.atmega2560.upload.speed") win
// over the base board ("mega.upload.speed").
func (p Profile) ApplyBoardsTxt(props *properties.Properties) (Profile, error) {
	if p.BoardsTxtID == "" {
		return p, nil
	}
	get := func(key string) (string, bool) {
		if v, ok := props.Get(p.BoardsTxtID + ".upload." + key); ok {
			return v, true
		}
		base, _, _ := strings.Cut(p.BoardsTxtID, ".")
		return props.Get(base + ".upload." + key)
	}

	if v, ok := get("protocol"); ok {
		proto, err := ParseProtocol(v)
		if err != nil {
			return p, fmt.Errorf("boards.txt for %s: %w", p.Board, err)
		}
		p.Protocol = proto
	}
	for key, dst := range map[string]*int{"speed": &p.Baud, "maximum_size": &p.FlashSize} {
		v, ok := get(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return p, fmt.Errorf("boards.txt for %s: upload.%s: %w", p.Board, key, err)
		}
		*dst = n
	}
	return p, nil
}
