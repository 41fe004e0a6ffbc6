package ibdiag

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/HerbHall/cabletrack/internal/fabric"
)

// VendorLabel is a rack/IRU based label used by the vendor cable verifier.
// Switch labels set Switch and Chip; node labels set Node and HCA.
type VendorLabel struct {
	Rack   int
	IRU    int
	Switch *int
	Chip   *int
	Node   *int
	HCA    *int
	Port   *int
}

var (
	// r1i0s0c0.16
	vendorChipRE = regexp.MustCompile(`^\s*r(?P<rack>\d+)i(?P<iru>\d+)s(?P<switch>\d+)c(?P<chip>\d+)\.(?P<port>\d+)\s*$`)
	// r1i3n17/U1/P1
	vendorNodeRE = regexp.MustCompile(`^\s*r(?P<rack>\d+)i(?P<iru>\d+)n(?P<node>\d+)(?:/U(?P<hca>\d+))?(?:/P(?P<port>\d+))?\s*$`)
	// r1i0s0 SW1 SwitchX -  Mellanox Technologies/P27
	vendorFirmwareRE = regexp.MustCompile(`^\s*r(?P<rack>\d+)i(?P<iru>\d+)s(?P<switch>\d+)(?:\s+SW(?P<chip>\d+))?(?:\s+SwitchX\s+-+\s+Mellanox Technologies)?(?:/P(?P<port>\d+))?\s*$`)
	// 001IRU2-0-1-14
	vendorPhysicalRE = regexp.MustCompile(`^\s*(?P<rack>\d+)IRU(?P<iru>\d+)-(?P<switch>\d+)-(?P<chip>\d+)(?:-(?P<port>\d+))?\s*$`)
)

// ParseVendorLabel parses any of the vendor label forms. It returns false if
// the label is not a vendor label.
func ParseVendorLabel(label string) (VendorLabel, bool) {
	for _, re := range []*regexp.Regexp{vendorChipRE, vendorNodeRE, vendorFirmwareRE, vendorPhysicalRE} {
		m := re.FindStringSubmatch(label)
		if m == nil {
			continue
		}
		get := func(name string) *int {
			i := re.SubexpIndex(name)
			if i < 0 || m[i] == "" {
				return nil
			}
			n, err := strconv.Atoi(m[i])
			if err != nil {
				return nil
			}
			return &n
		}
		v := VendorLabel{
			Switch: get("switch"),
			Chip:   get("chip"),
			Node:   get("node"),
			HCA:    get("hca"),
			Port:   get("port"),
		}
		v.Rack = *get("rack")
		v.IRU = *get("iru")
		return v, true
	}
	return VendorLabel{}, false
}

// Logical converts physical rack/IRU numbering to the logical numbering the
// firmware names use: two physical racks form one logical rack, with the IRUs
// of the even rack numbered from 4.
func (v VendorLabel) Logical() VendorLabel {
	if v.Rack%2 == 1 {
		v.Rack = (v.Rack + 1) / 2
	} else {
		v.Rack /= 2
		v.IRU += 4
	}
	return v
}

// Candidates returns the ports the label may refer to, most specific name
// first. Switch chips are named either with or without the vendor suffix.
// Node labels default to the first HCA and port.
func (v VendorLabel) Candidates() []*fabric.Port {
	switch {
	case v.Switch != nil:
		if v.Port == nil {
			return nil
		}
		port := *v.Port
		chip := 0
		if v.Chip != nil {
			chip = *v.Chip
		}
		short := fmt.Sprintf("r%di%ds%d SW%d", v.Rack, v.IRU, *v.Switch, chip)
		return []*fabric.Port{
			{Name: short + " SwitchX -  Mellanox Technologies", Num: fabric.IntPtr(port)},
			{Name: short, Num: fabric.IntPtr(port)},
		}
	case v.Node != nil:
		hca, port := 1, 1
		if v.HCA != nil {
			hca = *v.HCA
		}
		if v.Port != nil {
			port = *v.Port
		}
		return []*fabric.Port{{
			Name: fmt.Sprintf("r%di%dn%d", v.Rack, v.IRU, *v.Node),
			HCA:  fabric.StrPtr(strconv.Itoa(hca)),
			Num:  fabric.IntPtr(port),
		}}
	}
	return nil
}

// String renders the label in the verifier's own notation.
func (v VendorLabel) String() string {
	port := "?"
	if v.Port != nil {
		port = strconv.Itoa(*v.Port)
	}
	if v.Node != nil {
		return fmt.Sprintf("r%di%dn%d/P%s", v.Rack, v.IRU, *v.Node, port)
	}
	sw, chip := 0, 0
	if v.Switch != nil {
		sw = *v.Switch
	}
	if v.Chip != nil {
		chip = *v.Chip
	}
	return fmt.Sprintf("r%di%ds%dc%d.%s", v.Rack, v.IRU, sw, chip, port)
}
