package models

import "time"

// IssueType classifies a detected fabric problem.
type IssueType string

const (
	IssueCounters   IssueType = "counters"
	IssueLink       IssueType = "link"
	IssueLFT        IssueType = "lft"
	IssueUnknown    IssueType = "unknown"
	IssueSpeed      IssueType = "speed"
	IssueWidth      IssueType = "width"
	IssueDisabled   IssueType = "disabled"
	IssueLabel      IssueType = "label"
	IssueMissing    IssueType = "missing"
	IssueUnexpected IssueType = "unexpected"
	IssueEnabled    IssueType = "enabled"
	IssueManual     IssueType = "Manual Entry"
)

// Issue is a persisted problem report. The dedup key is
// (Type, Description, Raw, CableID); Raw and CableID may be absent.
type Issue struct {
	ID          int64     `json:"id" yaml:"id"`
	CableID     *int64    `json:"cable_id,omitempty" yaml:"cable_id,omitempty"`
	Type        IssueType `json:"type" yaml:"type"`
	Description string    `json:"description" yaml:"description"`
	Raw         *string   `json:"raw,omitempty" yaml:"raw,omitempty"`
	Source      string    `json:"source" yaml:"source"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
	Ignored     bool      `json:"ignored" yaml:"ignored"`
}
