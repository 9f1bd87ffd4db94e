package yolo

import (
	"fmt"
	"strings"

	"github.com/ironsheep/muret2yolo/internal/errs"
)

// Mode selects which MuRET entities become detection objects.
type Mode int

const (
	// Regions detects pages and regions on whole images.
	Regions Mode = iota
	// SymbolsInRegions detects symbols on crops of staff regions.
	SymbolsInRegions
	// SymbolsInImages detects symbols on whole images.
	SymbolsInImages
)

// Modes lists every mode.
var Modes = []Mode{Regions, SymbolsInRegions, SymbolsInImages}

func (m Mode) String() string {
	switch m {
	case Regions:
		return "REGIONS"
	case SymbolsInRegions:
		return "SYMBOLS_IN_REGIONS"
	case SymbolsInImages:
		return "SYMBOLS_IN_IMAGES"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= Regions && m <= SymbolsInImages
}

// ParseMode accepts mode names case-insensitively, with '-' or '_' separators.
func ParseMode(s string) (Mode, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, m := range Modes {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, errs.Configf("unknown mode %q, must be one of %v", s, Modes)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errs.Configf("unknown mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
