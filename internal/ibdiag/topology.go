package ibdiag

import (
	"fmt"
	"io"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// Lines of `ibnetdiscover -p`:
//
//	CA    44  1 0x0002c9030045f121 4x FDR - SW     2 17 0x0002c903006e1430 ( 'localhost HCA-1' - 'MF0;js01ib2:SX60XX/U1' )
//	SW     2 19 0x0002c903006e1430 4x SDR                                    'MF0;js01ib2:SX60XX/U1'
var topologyRE = regexp.MustCompile(`^(?P<type1>CA|SW)\s+(?P<lid1>\d+)\s+(?P<port1>\d+)\s+(?P<guid1>0x\w+)\s+` +
	`(?P<width>\w+)\s+(?P<speed>\w+|\?\?\?)\s+` +
	`(?:'(?P<name>.+)'` +
	`|` +
	`-\s+(?P<type2>CA|SW)\s+(?P<lid2>\d+)\s+(?P<port2>\d+)\s+(?P<guid2>0x\w+)\s+` +
	`\(\s+'(?P<name1>.+)'\s+-\s+'(?P<name2>.+)'\s+\))\s*$`)

// ParseTopology reads a topology dump. A line with one quoted name is an
// unconnected port; a line with two names is a cable and both ports are
// linked to each other.
func (p *Parser) ParseTopology(r io.Reader) error {
	return eachLine(r, func(line string) {
		m := topologyRE.FindStringSubmatch(line)
		if m == nil {
			if line != "" {
				p.logger.Debug("topology parse fail", zap.String("line", line))
			}
			return
		}
		g := func(name string) string { return m[topologyRE.SubexpIndex(name)] }

		if name := g("name"); name != "" {
			port, err := topologyPort(name, g("type1"), g("lid1"), g("port1"), g("guid1"), g("speed"), g("width"))
			if err != nil {
				p.logger.Warn("topology port rejected", zap.String("line", line), zap.Error(err))
				return
			}
			p.ports.Register(port, nil)
			return
		}

		p1, err := topologyPort(g("name1"), g("type1"), g("lid1"), g("port1"), g("guid1"), g("speed"), g("width"))
		if err != nil {
			p.logger.Warn("topology port rejected", zap.String("line", line), zap.Error(err))
			return
		}
		p2, err := topologyPort(g("name2"), g("type2"), g("lid2"), g("port2"), g("guid2"), g("speed"), g("width"))
		if err != nil {
			p.logger.Warn("topology port rejected", zap.String("line", line), zap.Error(err))
			return
		}
		fabric.Connect(p1, p2)
		p.ports.Register(p1, p2)
	})
}

func topologyPort(label, typ, lid, num, guid, speed, width string) (*fabric.Port, error) {
	port := fabric.ParseLabel(label)

	g, err := models.ParseGUID(guid)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return nil, fmt.Errorf("port number %q: %w", num, err)
	}
	l, err := strconv.Atoi(lid)
	if err != nil {
		return nil, fmt.Errorf("lid %q: %w", lid, err)
	}

	port.GUID = &g
	port.Num = &n
	port.LID = &l
	port.Type = fabric.PortType(typ)
	port.Speed = speed
	port.Width = width
	return port, nil
}
