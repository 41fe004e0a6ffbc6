package ibdiag

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

// csvSections maps the consumed ibdiagnet2.db_csv sections to the column
// holding the GUID the row is keyed by.
var csvSections = map[string]string{
	"CABLE_INFO": "PortGuid",
	"PORTS":      "NodeGuid",
}

// ParseCSV reads the section-delimited bulk inventory. Within a section the
// first row is the header; each following row is merged onto the port with
// the same GUID and port number.
func (p *Parser) ParseCSV(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var (
		section string
		header  []string
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				p.logger.Debug("csv parse fail", zap.Error(err))
				continue
			}
			return fmt.Errorf("read %s: %w", SourceCSV, err)
		}

		if len(row) == 1 && row[0] != "" {
			switch {
			case strings.HasPrefix(row[0], "START_"):
				section = strings.TrimPrefix(row[0], "START_")
				header = nil
			case strings.HasPrefix(row[0], "END_"):
				section = ""
				header = nil
			}
			continue
		}
		if section == "" {
			continue
		}
		if header == nil {
			header = row
			continue
		}

		guidColumn, ok := csvSections[section]
		if !ok {
			continue
		}
		record := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				record[h] = row[i]
			}
		}
		p.mergeCSVRecord(guidColumn, header, record)
	}
}

func (p *Parser) mergeCSVRecord(guidColumn string, header []string, record map[string]string) {
	guidText, hasGUID := record[guidColumn]
	numText, hasNum := record["PortNum"]
	if !hasGUID || !hasNum ||
		!p.check(SourceCSV, guidColumn, guidText, FieldHexInteger) ||
		!p.check(SourceCSV, "PortNum", numText, FieldInteger) {
		return
	}
	guid, _ := models.ParseGUID(guidText)
	num, _ := strconv.Atoi(strings.TrimSpace(numText))

	c := &fabric.Port{GUID: &guid, Num: &num}
	for _, key := range header {
		value, ok := record[key]
		if !ok {
			continue
		}
		switch key {
		case guidColumn, "PortNum":
		case "SN":
			if p.check(SourceCSV, key, value, FieldString) {
				c.Serial = strings.TrimSpace(value)
			}
		case "PN":
			if p.check(SourceCSV, key, value, FieldString) {
				c.PartNumber = strings.TrimSpace(value)
			}
		case "LengthDesc":
			if p.check(SourceCSV, key, value, FieldString) {
				c.Length = strings.TrimSpace(value)
			}
		case "PortPhyState":
			if value != "" && p.check(SourceCSV, key, value, FieldInteger) {
				c.PhysState = fabric.IntPtr(mustAtoi(value))
			}
		default:
			if value != "" && printableASCII(value) && len(value) <= MaxFieldLength {
				c.SetAttr(key, value)
			}
		}
	}

	if p.ports.ResolveAndUpdate(c) == nil {
		p.logger.Debug("csv row for unknown port", zap.Stringer("guid", guid), zap.Int("port", num))
	}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
