package cables

import (
	"database/sql"

	"github.com/HerbHall/cabletrack/internal/store"
)

// Component is the migration namespace of the cable inventory.
const Component = "cables"

// Migrations returns the cable inventory's database migrations.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create cables, cable_ports and issues tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE cables (
						id              INTEGER PRIMARY KEY AUTOINCREMENT,
						state           TEXT NOT NULL DEFAULT 'watch'
						                CHECK (state IN ('watch', 'suspect', 'disabled', 'removed')),
						suspected_count INTEGER NOT NULL DEFAULT 0,
						online          INTEGER NOT NULL DEFAULT 0,
						online_time     INTEGER,
						ticket_id       INTEGER,
						serial_number   TEXT NOT NULL DEFAULT '',
						part_number     TEXT NOT NULL DEFAULT '',
						length          TEXT NOT NULL DEFAULT '',
						comment         TEXT NOT NULL DEFAULT '',
						firmware_label  TEXT NOT NULL DEFAULT '',
						physical_label  TEXT NOT NULL DEFAULT '',
						created_at      INTEGER NOT NULL,
						last_modified   INTEGER NOT NULL
					)`,
					`CREATE INDEX idx_cables_state ON cables(state)`,
					`CREATE INDEX idx_cables_ticket ON cables(ticket_id)`,
					`CREATE TABLE cable_ports (
						id             INTEGER PRIMARY KEY AUTOINCREMENT,
						cable_id       INTEGER NOT NULL REFERENCES cables(id) ON DELETE CASCADE,
						guid           TEXT NOT NULL,
						port           INTEGER NOT NULL CHECK (port > 0),
						name           TEXT NOT NULL DEFAULT '',
						is_hca         INTEGER NOT NULL DEFAULT 0,
						firmware_label TEXT NOT NULL DEFAULT '',
						physical_label TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX idx_cable_ports_location ON cable_ports(guid, port)`,
					`CREATE INDEX idx_cable_ports_cable ON cable_ports(cable_id)`,
					`CREATE TRIGGER cable_ports_max_two BEFORE INSERT ON cable_ports
					WHEN (SELECT COUNT(*) FROM cable_ports WHERE cable_id = NEW.cable_id) >= 2
					BEGIN
						SELECT RAISE(ABORT, 'cable already has two ports');
					END`,
					`CREATE TABLE issues (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						cable_id    INTEGER REFERENCES cables(id) ON DELETE CASCADE,
						type        TEXT NOT NULL,
						description TEXT NOT NULL,
						raw         TEXT,
						source      TEXT NOT NULL DEFAULT '',
						last_seen   INTEGER NOT NULL,
						ignored     INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX idx_issues_key ON issues(type, description, cable_id)`,
					`CREATE INDEX idx_issues_cable ON issues(cable_id, last_seen)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create discovery_runs table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS discovery_runs (
					id              TEXT PRIMARY KEY,
					dump_dir        TEXT NOT NULL,
					logical_time    INTEGER NOT NULL,
					ports           INTEGER NOT NULL DEFAULT 0,
					cables_new      INTEGER NOT NULL DEFAULT 0,
					cables_replaced INTEGER NOT NULL DEFAULT 0,
					issues          INTEGER NOT NULL DEFAULT 0,
					unattributed    INTEGER NOT NULL DEFAULT 0,
					started_at      INTEGER NOT NULL
				)`)
				return err
			},
		},
	}
}
