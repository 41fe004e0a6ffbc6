package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/cabletrack/internal/cables"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

func cableList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "c" + strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func ticketText(id *int64) string {
	if id == nil {
		return ""
	}
	return "t" + strconv.FormatInt(*id, 10)
}

func timeText(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func onlineText(c *models.Cable) string {
	if c.Online {
		return "online"
	}
	return "offline"
}

// encode writes v as YAML or JSON.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown format %q: must be table, yaml or json", format)
}

func renderCables(w io.Writer, all []*models.Cable) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Cable", "State", "Suspected", "Ticket", "Online", "Serial", "Label", "Port", "Port Label"})
	for _, c := range all {
		first := table.Row{
			"c" + strconv.FormatInt(c.ID, 10), c.State, c.SuspectedCount, ticketText(c.TicketID),
			onlineText(c), c.SerialNumber, cables.Label(c),
		}
		if len(c.Ports) == 0 {
			t.AppendRow(append(first, "", ""))
			continue
		}
		for i, p := range c.Ports {
			row := table.Row{"", "", "", "", "", "", ""}
			if i == 0 {
				row = first
			}
			label := p.FirmwareLabel
			if p.PhysicalLabel != "" {
				label += " (" + p.PhysicalLabel + ")"
			}
			t.AppendRow(append(row, "p"+strconv.FormatInt(p.ID, 10), label))
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	t.Render()
}

func renderIssues(w io.Writer, issues []models.Issue) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Issue", "Cable", "Type", "Description", "Source", "Last Seen", "Ignored"})
	for _, is := range issues {
		cable := ""
		if is.CableID != nil {
			cable = "c" + strconv.FormatInt(*is.CableID, 10)
		}
		ignored := ""
		if is.Ignored {
			ignored = "yes"
		}
		t.AppendRow(table.Row{
			"i" + strconv.FormatInt(is.ID, 10), cable, is.Type, is.Description,
			is.Source, timeText(&is.LastSeen), ignored,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 70}})
	t.Render()
}

func renderActionable(w io.Writer, report []cables.Actionable) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Cable", "State", "Ticket", "Label", "Issue", "Type", "Description"})
	for _, a := range report {
		c := a.Cable
		first := table.Row{"c" + strconv.FormatInt(c.ID, 10), c.State, ticketText(c.TicketID), cables.Label(c)}
		if len(a.Issues) == 0 {
			t.AppendRow(append(first, "", "", ""))
			continue
		}
		for i, is := range a.Issues {
			row := table.Row{"", "", "", ""}
			if i == 0 {
				row = first
			}
			t.AppendRow(append(row, "i"+strconv.FormatInt(is.ID, 10), is.Type, is.Description))
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60},
		{Number: 7, WidthMax: 70},
	})
	t.Render()
}

func renderRuns(w io.Writer, runs []cables.Run) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Dump", "Logical Time", "Ports", "New", "Replaced", "Issues", "Unattributed"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.ID, r.DumpDir, timeText(&r.LogicalTime), r.Ports,
			r.CablesNew, r.CablesReplaced, r.Issues, r.Unattributed,
		})
	}
	t.Render()
}
