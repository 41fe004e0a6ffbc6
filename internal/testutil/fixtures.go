package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/HerbHall/cabletrack/internal/store"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// Fixed clock used by fixtures so timestamps compare exactly.
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewDB opens an in-memory database and applies the given component
// migrations. The database is closed when the test ends.
func NewDB(t *testing.T, component string, migrations []store.Migration) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), component, migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SwitchPort returns a switch-side cable port with a firmware label.
func SwitchPort(guid models.GUID, port int, name string) models.CablePort {
	return models.CablePort{
		GUID:          guid,
		Port:          port,
		Name:          name,
		FirmwareLabel: fmt.Sprintf("%s/P%d", name, port),
	}
}

// HCAPort returns a host-side cable port on HCA-1.
func HCAPort(guid models.GUID, port int, host string) models.CablePort {
	return models.CablePort{
		GUID:          guid,
		Port:          port,
		Name:          host,
		IsHCA:         true,
		FirmwareLabel: fmt.Sprintf("%s/U1/P%d", host, port),
	}
}

// NewCable returns a watched, online cable joining the given ports, suitable
// for test fixtures. Override individual fields with options.
func NewCable(ports []models.CablePort, opts ...func(*models.Cable)) models.Cable {
	c := models.Cable{
		State:        models.CableStateWatch,
		Online:       true,
		Ports:        ports,
		CreatedAt:    Epoch,
		LastModified: Epoch,
	}
	switch len(ports) {
	case 1:
		c.FirmwareLabel = ports[0].FirmwareLabel
	case 2:
		c.FirmwareLabel = ports[0].FirmwareLabel + " <--> " + ports[1].FirmwareLabel
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithState sets the cable state.
func WithState(s models.CableState) func(*models.Cable) {
	return func(c *models.Cable) { c.State = s }
}

// WithTicket sets the cable's ticket.
func WithTicket(id int64) func(*models.Cable) {
	return func(c *models.Cable) { c.TicketID = &id }
}

// WithSerial sets serial number, part number and length.
func WithSerial(serial, part, length string) func(*models.Cable) {
	return func(c *models.Cable) {
		c.SerialNumber = serial
		c.PartNumber = part
		c.Length = length
	}
}

// WithOffline clears the online flag.
func WithOffline() func(*models.Cable) {
	return func(c *models.Cable) { c.Online = false }
}

// WithCreated sets the creation and last modification time.
func WithCreated(t time.Time) func(*models.Cable) {
	return func(c *models.Cable) {
		c.CreatedAt = t
		c.LastModified = t
	}
}

// WithSuspected sets the offense count.
func WithSuspected(n int) func(*models.Cable) {
	return func(c *models.Cable) { c.SuspectedCount = n }
}
