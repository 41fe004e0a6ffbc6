package models

import "time"

// CableState is the lifecycle state of a tracked cable.
type CableState string

const (
	CableStateWatch    CableState = "watch"
	CableStateSuspect  CableState = "suspect"
	CableStateDisabled CableState = "disabled"
	CableStateRemoved  CableState = "removed"
)

// Valid reports whether s is one of the four lifecycle states.
func (s CableState) Valid() bool {
	switch s {
	case CableStateWatch, CableStateSuspect, CableStateDisabled, CableStateRemoved:
		return true
	}
	return false
}

// Cable is a persisted physical cable. A cable owns one or two ports; a cable
// with a single port is half-connected (the far end was never discovered).
type Cable struct {
	ID             int64       `json:"id" yaml:"id"`
	State          CableState  `json:"state" yaml:"state"`
	SuspectedCount int         `json:"suspected_count" yaml:"suspected_count"`
	Online         bool        `json:"online" yaml:"online"`
	OnlineTime     *time.Time  `json:"online_time,omitempty" yaml:"online_time,omitempty"`
	TicketID       *int64      `json:"ticket_id,omitempty" yaml:"ticket_id,omitempty"`
	SerialNumber   string      `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	PartNumber     string      `json:"part_number,omitempty" yaml:"part_number,omitempty"`
	Length         string      `json:"length,omitempty" yaml:"length,omitempty"`
	Comment        string      `json:"comment,omitempty" yaml:"comment,omitempty"`
	FirmwareLabel  string      `json:"firmware_label" yaml:"firmware_label"`
	PhysicalLabel  string      `json:"physical_label,omitempty" yaml:"physical_label,omitempty"`
	Ports          []CablePort `json:"ports" yaml:"ports"`
	CreatedAt      time.Time   `json:"created_at" yaml:"created_at"`
	LastModified   time.Time   `json:"last_modified" yaml:"last_modified"`
}

// HasHCA reports whether any port of the cable is on a host channel adapter.
func (c *Cable) HasHCA() bool {
	for _, p := range c.Ports {
		if p.IsHCA {
			return true
		}
	}
	return false
}

// HasSerial reports whether both serial and part number are known.
func (c *Cable) HasSerial() bool {
	return c.SerialNumber != "" && c.PartNumber != ""
}

// CablePort is one persisted endpoint of a cable.
type CablePort struct {
	ID            int64  `json:"id" yaml:"id"`
	CableID       int64  `json:"cable_id" yaml:"cable_id"`
	GUID          GUID   `json:"guid" yaml:"guid"`
	Port          int    `json:"port" yaml:"port"`
	Name          string `json:"name,omitempty" yaml:"name,omitempty"`
	IsHCA         bool   `json:"is_hca" yaml:"is_hca"`
	FirmwareLabel string `json:"firmware_label" yaml:"firmware_label"`
	PhysicalLabel string `json:"physical_label,omitempty" yaml:"physical_label,omitempty"`
}
