package event

import "github.com/HerbHall/cabletrack/pkg/models"

// CableStateChanged is the payload of TopicCableState.
type CableStateChanged struct {
	CableID int64
	From    models.CableState
	To      models.CableState
	Reason  string
}

// CableReplaced is the payload of TopicCableReplaced.
type CableReplaced struct {
	OldCableID int64
	NewCableID int64
}

// IssueOutcome says what recording an issue did.
type IssueOutcome string

const (
	IssueCreated   IssueOutcome = "created"
	IssueRefreshed IssueOutcome = "refreshed"
	IssueIgnored   IssueOutcome = "ignored"
)

// IssueRecorded is the payload of TopicIssue.
type IssueRecorded struct {
	IssueID int64
	CableID *int64
	Type    models.IssueType
	Outcome IssueOutcome
}

// TicketAction is the payload of TopicTicket.
type TicketAction struct {
	TicketID int64
	CableID  int64
	Action   string // create, comment, assign, close
	Err      error
}

// PortCommand is the payload of TopicFabric.
type PortCommand struct {
	CableID int64
	GUID    models.GUID
	Port    int
	Action  string // enable, disable
	Err     error
}

// RunCompleted is the payload of TopicRunCompleted.
type RunCompleted struct {
	RunID        string
	Ports        int
	CablesNew    int
	Replaced     int
	Issues       int
	Unattributed int
}
