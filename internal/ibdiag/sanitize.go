package ibdiag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// FieldKind is the declared type of an externally sourced field.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInteger
	FieldHexInteger
)

// MaxFieldLength is the longest accepted field value in bytes.
const MaxFieldLength = 4096

// CheckField validates one externally sourced value. A failing value becomes
// an unknown-type finding and the caller must treat the field as absent.
// An empty value is accepted for string fields.
func CheckField(source, what, value string, kind FieldKind) (fabric.Finding, bool) {
	if value == "" {
		if kind == FieldString {
			return fabric.Finding{}, true
		}
		return fabric.NewFinding(models.IssueUnknown,
			fmt.Sprintf("%s is empty instead of numbers", what), "", source), false
	}

	if !printableASCII(value) {
		return fabric.NewFinding(models.IssueUnknown,
			fmt.Sprintf("%s is non-ascii string", what),
			fmt.Sprintf("%s: hexdump: % x", what, value), source), false
	}

	if len(value) > MaxFieldLength {
		return fabric.NewFinding(models.IssueUnknown,
			fmt.Sprintf("%s is too long of a string", what), value, source), false
	}

	switch kind {
	case FieldInteger:
		if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return fabric.NewFinding(models.IssueUnknown,
				fmt.Sprintf("%s is invalid integer", what), value, source), false
		}
	case FieldHexInteger:
		if _, err := models.ParseGUID(value); err != nil {
			return fabric.NewFinding(models.IssueUnknown,
				fmt.Sprintf("%s is invalid base 16 integer", what), value, source), false
		}
	}
	return fabric.Finding{}, true
}

// check runs CheckField and records the finding on failure.
func (p *Parser) check(source, what, value string, kind FieldKind) bool {
	f, ok := CheckField(source, what, value, kind)
	if !ok {
		p.add(f)
	}
	return ok
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 0x20 || c > 0x7e) && c != '\t' {
			return false
		}
	}
	return true
}
