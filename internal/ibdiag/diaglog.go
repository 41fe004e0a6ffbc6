package ibdiag

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

var (
	// Stanzas in ibdiagnet2.log are separated by lines of dashes or hashes.
	stanzaDelimRE = regexp.MustCompile(`^[#-]+\s*$`)

	// Every message that is not -I- (info) or -W- (warning).
	diagMsgRE = regexp.MustCompile(`^\s*-[^IW]-\s+(?P<msg>.*)$`)

	// Counter dumps repeat the counter messages keyed by lid and are skipped.
	diagLidDumpRE = regexp.MustCompile(`^lid=0x[0-9a-z]+ dev=\d+`)

	// r9i1n24/U1/P1 - "port_rcv_remote_physical_errors" increased during the run (difference value=117,difference allowed threshold=1)
	diagCounterRE = regexp.MustCompile(`^\s*(?P<port>\S*)\s*-\s*"(?P<counter>\S*)"\s*increased during the run \(difference value=(?P<value>[0-9]*),`)

	// Link: S7cfe900300a51030/N7cfe900300a51030/P28<-->ime2/U1/P1 - Unexpected actual link speed 14
	diagLinkRE = regexp.MustCompile(`^\s*Link:\s*(?P<port>\S*?)(?:<-->(?P<port2>\S*))?\s*-\s*(?P<what>.*)`)

	// Unassigned LFT for lid:4 Dead end at:S7cfe900300bdf4f0/N7cfe900300bdf4f0 PLFT:0
	// Error in mark route from:gs1/U1 SLID:108 to DLID:103
	// Fail to find a path from:r1i3n6/U1/1 to:r1i3n12/U1/1
	diagLFTRE = regexp.MustCompile(`^\s*(?::\s*)?(?:Unassigned LFT for|Error in mark route|Fail to find a path)`)
)

// Check summaries that only restate errors reported elsewhere in the log.
var diagSummaryMessages = map[string]bool{
	"Ports counters value Check finished with errors":                   true,
	"Ports counters Difference Check (during run) finished with errors": true,
	"Links Speed Check finished with errors":                            true,
	"Links Check finished with errors":                                  true,
	"Links Width Check finished with errors":                            true,
	"Fabric Discover finished with errors":                              true,
	"Alias GUIDs finished with errors":                                  true,
	"Partition Keys finished with errors":                               true,
}

// counterThresholds maps a counter to the value at which it starts being
// reported. Zero means the counter is never reported.
var counterThresholds = map[string]int{
	// Congestion counters; symbol errors catch real cable faults.
	"port_rcv_switch_relay_errors":    0,
	"port_xmit_discard":               0,
	"port_rcv_remote_physical_errors": 0,

	// Node crashes bounce HCA links.
	"link_down_counter": 3,

	"port_rcv_errors":      100,
	"symbol_error_counter": 100,
	"vl15_dropped":         100,

	"error_detection_counter_lane0": 7,
	"error_detection_counter_lane1": 7,
	"error_detection_counter_lane2": 7,
	"error_detection_counter_lane3": 7,
	"unknown_block_cnt":             7,
	"sync_header_err_cnt":           7,
	"link_error_recovery_counter":   7,
}

// SuppressCounter reports whether a counter increase is below the level
// worth raising an issue for. Unknown counters are never suppressed.
func SuppressCounter(counter string, value int) bool {
	threshold, ok := counterThresholds[counter]
	if !ok {
		return false
	}
	if threshold == 0 {
		return true
	}
	return value < threshold
}

// ParseDiagLog reads ibdiagnet2.log. Each stanza starts with a title line
// after a delimiter; error lines inside it are classified as counter, link,
// LFT or unknown findings. The Summary stanza is skipped.
func (p *Parser) ParseDiagLog(r io.Reader) error {
	var (
		label     string
		wantLabel = true
	)
	return eachLine(r, func(line string) {
		if stanzaDelimRE.MatchString(line) {
			wantLabel = true
			return
		}
		if wantLabel {
			if strings.TrimSpace(line) == "" {
				return
			}
			label = strings.TrimSpace(line)
			wantLabel = false
			return
		}
		if label == "Summary" {
			return
		}

		m := diagMsgRE.FindStringSubmatch(line)
		if m == nil {
			return
		}
		msg := m[diagMsgRE.SubexpIndex("msg")]
		if diagLidDumpRE.MatchString(msg) {
			return
		}
		p.logger.Debug("ibdiagnet2 message", zap.String("stanza", label), zap.String("msg", msg))
		p.classifyDiagMessage(label, msg)
	})
}

func (p *Parser) classifyDiagMessage(label, msg string) {
	if m := diagCounterRE.FindStringSubmatch(msg); m != nil {
		counter := m[diagCounterRE.SubexpIndex("counter")]
		raw := m[diagCounterRE.SubexpIndex("value")]
		value, err := strconv.Atoi(raw)
		if err == nil && SuppressCounter(counter, value) {
			p.logger.Debug("ignoring counter", zap.String("counter", counter), zap.Int("value", value))
			return
		}
		port := p.ports.ResolveLabel(m[diagCounterRE.SubexpIndex("port")])
		p.add(fabric.NewFinding(models.IssueCounters,
			fmt.Sprintf("Counter %s increased to %s", counter, raw),
			msg, SourceDiagLog, port))
		return
	}

	if m := diagLinkRE.FindStringSubmatch(msg); m != nil {
		port := p.ports.ResolveLabel(m[diagLinkRE.SubexpIndex("port")])
		var port2 *fabric.Port
		if l := m[diagLinkRE.SubexpIndex("port2")]; l != "" {
			port2 = p.ports.ResolveLabel(l)
		}
		p.add(fabric.NewFinding(models.IssueLink, m[diagLinkRE.SubexpIndex("what")], msg, SourceDiagLog, port, port2))
		return
	}

	if diagLFTRE.MatchString(msg) {
		p.add(fabric.NewFinding(models.IssueLFT, "LFT Error", msg, SourceDiagLog))
		return
	}

	if diagSummaryMessages[msg] {
		return
	}

	// Best effort: any word that resolves to a known port.
	var found []*fabric.Port
	for _, w := range strings.Fields(msg) {
		if port := p.ports.ResolveLabel(w); port != nil && len(found) < 2 {
			found = append(found, port)
		}
	}
	p.logger.Debug("ibdiagnet2 unknown message", zap.String("stanza", label), zap.String("msg", msg))
	p.add(fabric.NewFinding(models.IssueUnknown, fmt.Sprintf("%s: %s", label, msg), msg, SourceDiagLog, found...))
}
