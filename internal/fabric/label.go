package fabric

import (
	"regexp"
	"strconv"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// labelMatcher converts one label grammar into a port. It returns false when
// the label does not belong to its grammar.
type labelMatcher func(label string) (*Port, bool)

// labelMatchers are tried in order; the first grammar that accepts a label wins.
var labelMatchers = []labelMatcher{
	matchHierarchical,
	matchCanonical,
	matchLoose,
}

// ParseLabel converts a free-form port label into a port with name, unit and
// port number fields set. Labels no grammar accepts become an opaque name.
func ParseLabel(label string) *Port {
	for _, m := range labelMatchers {
		if p, ok := m(label); ok {
			return p
		}
	}
	return &Port{Name: label}
}

// Examples:
//
//	'ys4618 HCA-1'(4594/1)
//	MF0;ys75ib1:SXX536/L05/U1/P2
//	ys46ib1:SX60XX/U1/P26
//	'MF0;ys72ib1:SXX536/L22/U1'(395/1)
//	geyser1/H3/P1
//
// The LID inside a trailing "(lid/port)" hint is unreliable and ignored.
var hierarchicalRE = regexp.MustCompile(`^\s*'?(?:` +
	`(?P<host>\w+)\s+[hcaHCA]+-(?P<hostHCA>\d+)` +
	`|` +
	`(?:MF0;)?(?P<tca>\w+)(?::SX\w+)?` +
	`(?:/[hcaHCA]{1,3}(?P<tcaHCA>\d+))?` +
	`(?:/[lLiIdD]+(?P<leaf>\d+))?` +
	`(?:/S(?P<spine>\d+))?` +
	`(?:/U(?P<unit>\d+))?` +
	`(?:/P(?P<port>\d+))?` +
	`)'?(?:\(\d+/(?P<hintPort>\d+)\))?\s*$`)

func matchHierarchical(label string) (*Port, bool) {
	m := hierarchicalRE.FindStringSubmatch(label)
	if m == nil {
		return nil, false
	}
	g := func(name string) string { return m[hierarchicalRE.SubexpIndex(name)] }

	p := &Port{}
	if host := g("host"); host != "" {
		p.Name = host
		p.HCA = StrPtr(g("hostHCA"))
	}
	if tca := g("tca"); tca != "" {
		p.Name = tca
		p.Spine = optional(g("spine"))
		p.HCA = optional(g("tcaHCA"))
		p.Leaf = optional(g("leaf"))
	}
	if unit := g("unit"); unit != "" {
		p.HCA = StrPtr(unit)
	}
	if port := g("port"); port != "" {
		p.Num = atoi(port)
	}
	if port := g("hintPort"); port != "" {
		p.Num = atoi(port)
	}
	return p, true
}

// Examples (vendor default for unlabeled ports):
//
//	S7cfe900300bdf570/N7cfe900300bdf570/P28
//	S248a0703003f1932/U/P1
var canonicalRE = regexp.MustCompile(`^\s*S(?P<guid>[a-fA-F0-9]+)(?:/N[a-fA-F0-9]*|/U)(?:/P(?P<port>[0-9]*))?$`)

func matchCanonical(label string) (*Port, bool) {
	m := canonicalRE.FindStringSubmatch(label)
	if m == nil {
		return nil, false
	}
	guid, err := models.ParseGUID(m[canonicalRE.SubexpIndex("guid")])
	if err != nil {
		return nil, false
	}
	p := &Port{GUID: &guid, Name: guid.String()}
	if port := m[canonicalRE.SubexpIndex("port")]; port != "" {
		p.Num = atoi(port)
	}
	return p, true
}

// Examples (usually typed by people):
//
//	ys70ib1 L05 P12
//	ys22ib1 P13
//	geyser01 HCA-1 P3
var looseRE = regexp.MustCompile(`^\s*(?P<name>\w+)` +
	`(?:\s+[hcaHCA]+-?(?P<hca>\d+))?` +
	`(?:\s+[lLiIdD]+(?P<leaf>\d+))?` +
	`(?:\s+U\d+)?` +
	`(?:\s+[pP](?P<port>\d+))?\s*$`)

func matchLoose(label string) (*Port, bool) {
	m := looseRE.FindStringSubmatch(label)
	if m == nil {
		return nil, false
	}
	p := &Port{
		Name: m[looseRE.SubexpIndex("name")],
		HCA:  optional(m[looseRE.SubexpIndex("hca")]),
		Leaf: optional(m[looseRE.SubexpIndex("leaf")]),
	}
	if port := m[looseRE.SubexpIndex("port")]; port != "" {
		p.Num = atoi(port)
	}
	return p, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
