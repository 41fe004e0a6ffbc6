// Package ibdiag parses the output of the InfiniBand diagnostic tools
// (ibnetdiscover, ibdiagnet2 and the vendor cable verifier) into the run's
// port set and a list of findings. Parsers never touch tickets or hardware,
// and malformed content is logged rather than returned as an error; only
// read failures propagate.
package ibdiag

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
)

// Source names recorded on findings.
const (
	SourceTopology     = "ibnetdiscover -p"
	SourceDiagLog      = "ibdiagnet2.log"
	SourceCSV          = "ibdiagnet2.db_csv"
	SourceCablesDump   = "ibdiagnet2.cables"
	SourceDiagnet      = "ibdiagnet2"
	SourceVerification = "sgi ibcv2"
)

// Parser accumulates ports and findings across the diagnostic files of one
// discovery run. Files must be fed topology first: the other sources only
// decorate ports the topology dump created.
type Parser struct {
	ports    *fabric.PortSet
	findings []fabric.Finding
	logger   *zap.Logger
}

// NewParser returns a parser that registers ports into ports.
func NewParser(ports *fabric.PortSet, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{ports: ports, logger: logger}
}

// Ports returns the port set being built.
func (p *Parser) Ports() *fabric.PortSet {
	return p.ports
}

// Findings returns every finding reported so far, in detection order.
func (p *Parser) Findings() []fabric.Finding {
	return p.findings
}

func (p *Parser) add(f fabric.Finding) {
	p.findings = append(p.findings, f)
}

// eachLine calls fn for every line of r with trailing carriage returns removed.
func eachLine(r io.Reader, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fn(strings.TrimRight(sc.Text(), "\r"))
	}
	return sc.Err()
}
