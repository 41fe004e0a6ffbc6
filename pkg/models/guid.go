package models

import (
	"fmt"
	"strconv"
	"strings"
)

// GUID is the 64-bit hardware identifier of a fabric port or node.
//
// SQLite integers are signed, so GUIDs are persisted as the decimal string of
// the unsigned value (see DecimalString / ParseGUIDDecimal).
type GUID uint64

// ParseGUID parses a hexadecimal GUID with or without a leading "0x".
func ParseGUID(s string) (GUID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("parse guid: empty value")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// ParseGUIDDecimal parses the decimal storage encoding of a GUID.
func ParseGUIDDecimal(s string) (GUID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse decimal guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// DecimalString returns the storage encoding of g.
func (g GUID) DecimalString() string {
	return strconv.FormatUint(uint64(g), 10)
}

// String returns the conventional 0x-prefixed, zero-padded hex form.
func (g GUID) String() string {
	return fmt.Sprintf("0x%016x", uint64(g))
}

// MarshalText renders g in hex so reports show GUIDs the way fabric tools
// print them.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText accepts the hex form written by MarshalText.
func (g *GUID) UnmarshalText(b []byte) error {
	v, err := ParseGUID(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
