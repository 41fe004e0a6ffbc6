// Package fabric holds the per-run port model shared by the diagnostic
// parsers, the cable matcher and the issue correlator.
package fabric

import (
	"fmt"
	"regexp"

	"github.com/HerbHall/cabletrack/pkg/models"
)

// PortType distinguishes host channel adapters from switch ports.
type PortType string

const (
	PortTypeHCA    PortType = "CA"
	PortTypeSwitch PortType = "SW"
)

// PhysStateDisabled is the PortPhyState code of an administratively disabled port.
const PhysStateDisabled = 3

// Port is one physical fabric port observed during a discovery run.
// Optional fields are pointers or empty strings; nil means "not reported by
// any source", which the resolver treats differently from a zero value.
type Port struct {
	GUID *models.GUID
	Num  *int
	LID  *int

	Name  string
	HCA   *string
	Leaf  *string
	Spine *string

	Type  PortType
	Speed string
	Width string

	Serial     string
	PartNumber string
	Length     string

	// PhysState is the numeric PortPhyState from the bulk inventory, if any.
	PhysState *int
	// Attrs keeps any other key/value attributes a source reported.
	Attrs map[string]string

	// Connection is the port at the other end of the cable, nil when unconnected.
	Connection *Port

	// CableID is the persisted cable this port was matched to in the current
	// run; zero until the matcher attributes it.
	CableID int64
}

// Connect links two ports as the two ends of one cable.
func Connect(a, b *Port) {
	a.Connection = b
	b.Connection = a
}

// IsHCA reports whether the port sits on a host channel adapter.
func (p *Port) IsHCA() bool {
	return p.Type == PortTypeHCA
}

// HasSerial reports whether both serial and part number were reported.
func (p *Port) HasSerial() bool {
	return p.Serial != "" && p.PartNumber != ""
}

// SetAttr records an extra attribute reported by a source.
func (p *Port) SetAttr(key, value string) {
	if p.Attrs == nil {
		p.Attrs = make(map[string]string)
	}
	p.Attrs[key] = value
}

// Merge copies every field present on src onto p. Fields absent on src are
// left untouched, so repeated merges are last-write-wins per field.
func (p *Port) Merge(src *Port) {
	if src.GUID != nil {
		g := *src.GUID
		p.GUID = &g
	}
	if src.Num != nil {
		n := *src.Num
		p.Num = &n
	}
	if src.LID != nil {
		l := *src.LID
		p.LID = &l
	}
	if src.Name != "" {
		p.Name = src.Name
	}
	if src.HCA != nil {
		p.HCA = src.HCA
	}
	if src.Leaf != nil {
		p.Leaf = src.Leaf
	}
	if src.Spine != nil {
		p.Spine = src.Spine
	}
	if src.Type != "" {
		p.Type = src.Type
	}
	if src.Speed != "" {
		p.Speed = src.Speed
	}
	if src.Width != "" {
		p.Width = src.Width
	}
	if src.Serial != "" {
		p.Serial = src.Serial
	}
	if src.PartNumber != "" {
		p.PartNumber = src.PartNumber
	}
	if src.Length != "" {
		p.Length = src.Length
	}
	if src.PhysState != nil {
		s := *src.PhysState
		p.PhysState = &s
	}
	for k, v := range src.Attrs {
		p.SetAttr(k, v)
	}
	if src.Connection != nil {
		p.Connection = src.Connection
	}
}

var vendorSuffix = regexp.MustCompile(`\s*SwitchX\s*-\s*Mellanox Technologies`)

// PrettyName strips the vendor boilerplate some switches put in their node
// description.
func PrettyName(name string) string {
	return vendorSuffix.ReplaceAllString(name, "")
}

// Label renders the firmware label of the port, e.g. "ys75ib1/L05/P2".
func (p *Port) Label() string {
	if p == nil {
		return "None"
	}
	name := PrettyName(p.Name)
	num := "?"
	if p.Num != nil {
		num = fmt.Sprintf("%d", *p.Num)
	}
	switch {
	case p.Spine != nil:
		return fmt.Sprintf("%s/S%s/P%s", name, *p.Spine, num)
	case p.Leaf != nil:
		return fmt.Sprintf("%s/L%s/P%s", name, *p.Leaf, num)
	case p.HCA != nil:
		return fmt.Sprintf("%s/U%s/P%s", name, *p.HCA, num)
	}
	return fmt.Sprintf("%s/P%s", name, num)
}

// CableLabel renders the label of the cable joining a and b.
func CableLabel(a, b *Port) string {
	return fmt.Sprintf("%s <--> %s", a.Label(), b.Label())
}

// IntPtr and StrPtr are small helpers for building ports with optional fields.
func IntPtr(v int) *int { return &v }

func StrPtr(v string) *string { return &v }

func GUIDPtr(v models.GUID) *models.GUID { return &v }
