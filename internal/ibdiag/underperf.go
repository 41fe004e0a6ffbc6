package ibdiag

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// CheckPorts flags every connected port running below the expected speed or
// width, every unconnected port whose physical state is Disabled, and every
// port still labeled "localhost".
func (p *Parser) CheckPorts(speed, width string) {
	for _, port := range p.ports.Ports() {
		if port.Name == "localhost" {
			p.logger.Debug("localhost labeled port", zap.String("port", port.Label()))
			p.add(fabric.NewFinding(models.IssueLabel, port.Name, "", SourceTopology, port))
		}

		if port.Connection != nil {
			if port.Speed != speed {
				p.add(fabric.NewFinding(models.IssueSpeed, fmt.Sprintf("Port Speed: %s", port.Speed),
					"", SourceTopology, port, port.Connection))
			}
			if port.Width != width {
				p.add(fabric.NewFinding(models.IssueWidth, fmt.Sprintf("Port Width: %s", port.Width),
					"", SourceTopology, port, port.Connection))
			}
			continue
		}

		if port.PhysState == nil {
			p.logger.Debug("down port missing physical state", zap.String("port", port.Label()))
			continue
		}
		if *port.PhysState == fabric.PhysStateDisabled {
			p.add(fabric.NewFinding(models.IssueDisabled, "Port Physical State Disabled",
				"", SourceDiagnet, port))
		}
	}
}
