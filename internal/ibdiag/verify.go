package ibdiag

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

var (
	verifyErrorRE    = regexp.MustCompile(`ERROR:\s*(?P<what>.+)`)
	verifyInternalRE = regexp.MustCompile(`NOT FOUND:\s*(?P<switch>\S+)\s*INTERNAL port (?P<p1>\d+) to (?P<p2>\d+)`)
	verifyMissingRE  = regexp.MustCompile(`NOT FOUND:\s*(?P<l1>\S+)\s*(?P<l2>\S*)`)
	verifyFoundRE    = regexp.MustCompile(`FOUND:\s*(?P<l1>\S+)\s*<-*>\s*(?P<l2>\S+)`)
)

// ParseVerification reads the vendor cable verifier log. FOUND lines report
// unexpected cables, NOT FOUND lines missing ones and ERROR lines anything
// else. An internal link between the two chips of one switch is reported as
// "NOT FOUND: <switch> INTERNAL port a to b" and expands to <switch>c0.a and
// <switch>c1.b.
func (p *Parser) ParseVerification(r io.Reader) error {
	return eachLine(r, func(line string) {
		if m := verifyErrorRE.FindStringSubmatch(line); m != nil {
			p.logger.Debug("verifier error", zap.String("what", m[1]))
			p.add(fabric.NewFinding(models.IssueUnknown, "Unknown Error detected",
				strings.TrimSpace(m[0]), SourceVerification))
			return
		}
		if m := verifyInternalRE.FindStringSubmatch(line); m != nil {
			sw := m[verifyInternalRE.SubexpIndex("switch")]
			l1 := fmt.Sprintf("%sc0.%s", sw, m[verifyInternalRE.SubexpIndex("p1")])
			l2 := fmt.Sprintf("%sc1.%s", sw, m[verifyInternalRE.SubexpIndex("p2")])
			p.add(fabric.NewFinding(models.IssueMissing, "Missing cable", strings.TrimSpace(m[0]),
				SourceVerification, p.resolveVendorLabel(l1), p.resolveVendorLabel(l2)))
			return
		}
		if m := verifyMissingRE.FindStringSubmatch(line); m != nil {
			p.add(fabric.NewFinding(models.IssueMissing, "Missing cable", strings.TrimSpace(m[0]),
				SourceVerification, p.resolveVendorLabel(m[1]), p.resolveVendorLabel(m[2])))
			return
		}
		if m := verifyFoundRE.FindStringSubmatch(line); m != nil {
			p.add(fabric.NewFinding(models.IssueUnexpected, "Unexpected cable", strings.TrimSpace(m[0]),
				SourceVerification, p.resolveVendorLabel(m[1]), p.resolveVendorLabel(m[2])))
		}
	})
}

func (p *Parser) resolveVendorLabel(label string) *fabric.Port {
	if label == "" {
		return nil
	}
	v, ok := ParseVendorLabel(label)
	if !ok {
		p.logger.Debug("unable to parse verifier label", zap.String("label", label))
		return nil
	}
	v = v.Logical()
	for _, c := range v.Candidates() {
		if port := p.ports.Resolve(c); port != nil {
			return port
		}
	}
	p.logger.Debug("unable to resolve verifier label", zap.String("label", label), zap.Stringer("logical", v))
	return nil
}
