package fabric

import "github.com/HerbHall/cabletrack/pkg/models"

// Finding is a problem detected in diagnostic output, still referring to the
// run's ports rather than to persisted cables. Port entries may be nil when a
// source named a port that could not be resolved.
type Finding struct {
	Type        models.IssueType
	Ports       []*Port
	Description string
	Raw         *string
	Source      string
}

// NewFinding builds a finding; raw may be empty for "no raw text".
func NewFinding(typ models.IssueType, description, raw, source string, ports ...*Port) Finding {
	f := Finding{
		Type:        typ,
		Ports:       ports,
		Description: description,
		Source:      source,
	}
	if raw != "" {
		f.Raw = &raw
	}
	return f
}

// RawText returns the raw text or an empty string.
func (f Finding) RawText() string {
	if f.Raw == nil {
		return ""
	}
	return *f.Raw
}
