package ibdiag

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// Stanzas of ibdiagnet2.cables:
//
//	-------------------------------------------------------
//	Port=2 Lid=0x02d7 GUID=0x0002c9030068eaf0 Port Name=gladei00ib1a/L02/U1/P2
//	-------------------------------------------------------
//	Vendor: Mellanox
//	PN: 00W0085
//	SN: 4008537306W
//	Length: 20 m
var (
	cablesHeaderRE = regexp.MustCompile(`^\s*Port=(?P<port>\d+)\s+Lid=(?P<lid>\w+)\s+GUID=(?P<guid>\w+)\s+Port Name=(?P<name>.*?)\s*$`)
	cablesFieldRE  = regexp.MustCompile(`^\s*(?P<key>\w+)\s*:\s+(?P<value>.*?)\s*$`)
)

type dumpedPort struct {
	port, lid, guid string
	fields          map[string]string
	order           []string
}

// ParseCablesDump reads per-port cable attribute stanzas. Attributes are
// accumulated until the next header; a port is committed only when it
// carries a serial number.
func (p *Parser) ParseCablesDump(r io.Reader) error {
	var cur *dumpedPort
	err := eachLine(r, func(line string) {
		if m := cablesHeaderRE.FindStringSubmatch(line); m != nil {
			if cur != nil {
				p.commitDumpedPort(cur)
			}
			cur = &dumpedPort{
				port:   m[cablesHeaderRE.SubexpIndex("port")],
				lid:    m[cablesHeaderRE.SubexpIndex("lid")],
				guid:   m[cablesHeaderRE.SubexpIndex("guid")],
				fields: make(map[string]string),
			}
			return
		}
		if cur == nil {
			return
		}
		if m := cablesFieldRE.FindStringSubmatch(line); m != nil {
			key := m[cablesFieldRE.SubexpIndex("key")]
			if _, seen := cur.fields[key]; !seen {
				cur.order = append(cur.order, key)
			}
			cur.fields[key] = m[cablesFieldRE.SubexpIndex("value")]
		}
	})
	if cur != nil {
		p.commitDumpedPort(cur)
	}
	return err
}

func (p *Parser) commitDumpedPort(d *dumpedPort) {
	if d.fields["SN"] == "" {
		return
	}
	if !p.check(SourceCablesDump, "Port", d.port, FieldInteger) ||
		!p.check(SourceCablesDump, "GUID", d.guid, FieldHexInteger) {
		return
	}
	guid, _ := models.ParseGUID(d.guid)
	num, _ := strconv.Atoi(d.port)
	c := &fabric.Port{GUID: &guid, Num: &num}

	if p.check(SourceCablesDump, "Lid", d.lid, FieldHexInteger) {
		if lid, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(d.lid), "0x"), 16, 32); err == nil {
			l := int(lid)
			c.LID = &l
		}
	}

	for _, key := range d.order {
		value := d.fields[key]
		if !p.check(SourceCablesDump, key, value, FieldString) {
			continue
		}
		switch key {
		case "SN":
			c.Serial = value
		case "PN":
			c.PartNumber = value
		case "Length", "LengthDesc":
			c.Length = value
		default:
			c.SetAttr(key, value)
		}
	}

	if c.Serial == "" {
		return
	}
	if p.ports.ResolveAndUpdate(c) == nil {
		p.logger.Debug("cable dump for unknown port", zap.Stringer("guid", guid), zap.Int("port", num))
	}
}
