package ibdiag

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cabletrack/internal/fabric"
	"github.com/HerbHall/cabletrack/pkg/models"
)

const (
	guidA = models.GUID(0x0002c903006e1430)
	guidB = models.GUID(0x0002c903006e1500)
	guidH = models.GUID(0x0002c9030045f121)
)

const topologyDump = `SW     2 17 0x0002c903006e1430 4x FDR - CA    44  1 0x0002c9030045f121 ( 'MF0;js01ib2:SX60XX/U1' - 'js0101 HCA-1' )
SW     2 18 0x0002c903006e1430 4x FDR - SW     3  1 0x0002c903006e1500 ( 'MF0;js01ib2:SX60XX/U1' - 'MF0;js01ib3:SX60XX/U1' )
SW     3  1 0x0002c903006e1500 4x FDR - SW     2 18 0x0002c903006e1430 ( 'MF0;js01ib3:SX60XX/U1' - 'MF0;js01ib2:SX60XX/U1' )
SW     2 19 0x0002c903006e1430 4x SDR                                    'MF0;js01ib2:SX60XX/U1'
CA    44  1 0x0002c9030045f121 4x FDR - SW     2 17 0x0002c903006e1430 ( 'js0101 HCA-1' - 'MF0;js01ib2:SX60XX/U1' )
SW     3  2 0x0002c903006e1500 4x SDR - SW     2 20 0x0002c903006e1430 ( 'MF0;js01ib3:SX60XX/U1' - 'MF0;js01ib2:SX60XX/U1' )
this line is not topology
`

// findingSummary is the comparable part of a finding.
type findingSummary struct {
	Type        models.IssueType
	Description string
	Raw         string
	Ports       []string
}

func summarize(findings []fabric.Finding) []findingSummary {
	out := make([]findingSummary, 0, len(findings))
	for _, f := range findings {
		s := findingSummary{Type: f.Type, Description: f.Description, Raw: f.RawText()}
		for _, p := range f.Ports {
			s.Ports = append(s.Ports, p.Label())
		}
		out = append(out, s)
	}
	return out
}

func newTopology(t *testing.T) *Parser {
	t.Helper()
	p := NewParser(fabric.NewPortSet(nil), nil)
	require.NoError(t, p.ParseTopology(strings.NewReader(topologyDump)))
	return p
}

func lookup(t *testing.T, p *Parser, guid models.GUID, num int) *fabric.Port {
	t.Helper()
	port := p.Ports().Resolve(&fabric.Port{GUID: &guid, Num: &num})
	require.NotNil(t, port, "port %s/%d", guid, num)
	return port
}

func TestParseTopology(t *testing.T) {
	p := newTopology(t)

	assert.Equal(t, 7, p.Ports().Len())

	a17 := lookup(t, p, guidA, 17)
	h1 := lookup(t, p, guidH, 1)
	assert.Same(t, h1, a17.Connection)
	assert.Same(t, a17, h1.Connection)
	assert.Equal(t, "js01ib2", a17.Name)
	assert.Equal(t, fabric.PortTypeSwitch, a17.Type)
	assert.True(t, h1.IsHCA())
	assert.Equal(t, "js0101/U1/P1", h1.Label())
	require.NotNil(t, a17.LID)
	assert.Equal(t, 2, *a17.LID)

	a19 := lookup(t, p, guidA, 19)
	assert.Nil(t, a19.Connection)
	assert.Equal(t, "SDR", a19.Speed)

	assert.Empty(t, p.Findings())
}

func TestSuppressCounter(t *testing.T) {
	tests := []struct {
		counter string
		value   int
		want    bool
	}{
		{"port_xmit_discard", 100000, true},
		{"port_rcv_switch_relay_errors", 1, true},
		{"port_rcv_remote_physical_errors", 117, true},
		{"link_down_counter", 2, true},
		{"link_down_counter", 3, false},
		{"symbol_error_counter", 99, true},
		{"symbol_error_counter", 100, false},
		{"port_rcv_errors", 99, true},
		{"port_rcv_errors", 100, false},
		{"vl15_dropped", 99, true},
		{"vl15_dropped", 100, false},
		{"error_detection_counter_lane2", 6, true},
		{"error_detection_counter_lane2", 7, false},
		{"sync_header_err_cnt", 6, true},
		{"link_error_recovery_counter", 7, false},
		{"excessive_buffer_overrun_errors", 1, false},
	}
	for _, tc := range tests {
		if got := SuppressCounter(tc.counter, tc.value); got != tc.want {
			t.Errorf("SuppressCounter(%s, %d) = %v, want %v", tc.counter, tc.value, got, tc.want)
		}
	}
}

const diagLog = `-------------------------------------------------------
Discovery
-I- Discovering ... 3 nodes (2 Switches & 1 CA-s) discovered.
-E- Fabric Discover finished with errors
-------------------------------------------------------
Port Counters
-E- js01ib2/U1/P18 - "link_down_counter" increased during the run (difference value=2,difference allowed threshold=1)
-E- js01ib2/U1/P18 - "link_down_counter" increased during the run (difference value=3,difference allowed threshold=1)
-E- lid=0x0002 dev=51000 js01ib2/U1/P18 link_down_counter=3
-W- js0101/U1/P1 - "symbol_error_counter" increased during the run (difference value=500,difference allowed threshold=1)
-E- js0101/U1/P1 - "symbol_error_counter" increased during the run (difference value=99,difference allowed threshold=1)
-E- js0101/U1/P1 - "symbol_error_counter" increased during the run (difference value=100,difference allowed threshold=1)
-------------------------------------------------------
Links Check
-E- Link: S0002c903006e1430/N0002c903006e1430/P17<-->js0101/U1/P1 - Unexpected actual link speed 14
-------------------------------------------------------
Routing
-E- Unassigned LFT for lid:4 Dead end at:S0002c903006e1430/N0002c903006e1430 PLFT:0
-E- Something odd about S0002c903006e1500/N0002c903006e1500/P1 here
-------------------------------------------------------
Summary
-E- Port Counters: 3 errors
`

func TestParseDiagLog(t *testing.T) {
	p := newTopology(t)
	require.NoError(t, p.ParseDiagLog(strings.NewReader(diagLog)))

	want := []findingSummary{
		{
			Type:        models.IssueCounters,
			Description: "Counter link_down_counter increased to 3",
			Raw:         `js01ib2/U1/P18 - "link_down_counter" increased during the run (difference value=3,difference allowed threshold=1)`,
			Ports:       []string{"js01ib2/U1/P18"},
		},
		{
			Type:        models.IssueCounters,
			Description: "Counter symbol_error_counter increased to 100",
			Raw:         `js0101/U1/P1 - "symbol_error_counter" increased during the run (difference value=100,difference allowed threshold=1)`,
			Ports:       []string{"js0101/U1/P1"},
		},
		{
			Type:        models.IssueLink,
			Description: "Unexpected actual link speed 14",
			Raw:         "Link: S0002c903006e1430/N0002c903006e1430/P17<-->js0101/U1/P1 - Unexpected actual link speed 14",
			Ports:       []string{"js01ib2/U1/P17", "js0101/U1/P1"},
		},
		{
			Type:        models.IssueLFT,
			Description: "LFT Error",
			Raw:         "Unassigned LFT for lid:4 Dead end at:S0002c903006e1430/N0002c903006e1430 PLFT:0",
		},
		{
			Type:        models.IssueUnknown,
			Description: "Routing: Something odd about S0002c903006e1500/N0002c903006e1500/P1 here",
			Raw:         "Something odd about S0002c903006e1500/N0002c903006e1500/P1 here",
			Ports:       []string{"js01ib3/U1/P1"},
		},
	}
	if diff := cmp.Diff(want, summarize(p.Findings())); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

const bulkCSV = `START_NODES
NodeDesc,NodeGUID
"js01ib2",0x0002c903006e1430
END_NODES

START_PORTS
NodeGuid,PortGuid,PortNum,PortState,PortPhyState
0x0002c903006e1430,0x0002c903006e1430,19,1,3
0x0002c903006e1430,0x0002c903006e1430,17,4,5
0x0002c903006e1430,0x0002c903006e1430,0,4,5
END_PORTS

START_CABLE_INFO
NodeGuid,PortGuid,PortNum,Vendor,PN,SN,LengthDesc
0x0002c903006e1430,0x0002c903006e1430,18,Mellanox,MC2207130-002,MT1234567890,2 m
0x0002c9030045f121,0x0002c9030045f121,1,Mellanox,MC2207130-001,MT0000000001,1 m
0x0002c903006e1500,0x0002c903006e1500,1,Mellanox,MC2207130-002,MT1234567890,2 m
zzz,zzz,2,Mellanox,MC2207130-002,MT1,2 m
0x0002c903006e1500,0x0002c903006e1500,,Mellanox,MC2207130-002,MT1,2 m
END_CABLE_INFO
`

func TestParseCSV(t *testing.T) {
	p := newTopology(t)
	require.NoError(t, p.ParseCSV(strings.NewReader(bulkCSV)))

	a18 := lookup(t, p, guidA, 18)
	assert.Equal(t, "MT1234567890", a18.Serial)
	assert.Equal(t, "MC2207130-002", a18.PartNumber)
	assert.Equal(t, "2 m", a18.Length)
	assert.Equal(t, "Mellanox", a18.Attrs["Vendor"])

	a19 := lookup(t, p, guidA, 19)
	require.NotNil(t, a19.PhysState)
	assert.Equal(t, fabric.PhysStateDisabled, *a19.PhysState)

	h1 := lookup(t, p, guidH, 1)
	assert.Equal(t, "MT0000000001", h1.Serial)

	want := []findingSummary{
		{Type: models.IssueUnknown, Description: "PortGuid is invalid base 16 integer", Raw: "zzz"},
		{Type: models.IssueUnknown, Description: "PortNum is empty instead of numbers"},
	}
	if diff := cmp.Diff(want, summarize(p.Findings())); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

const cablesDump = `-------------------------------------------------------
Port=20 Lid=0x0002 GUID=0x0002c903006e1430 Port Name=js01ib2/U1/P20
-------------------------------------------------------
Vendor: Mellanox
PN: MC2207130-003
SN: MT5555
Length: 3 m

-------------------------------------------------------
Port=2 Lid=0x0003 GUID=0x0002c903006e1500 Port Name=js01ib3/U1/P2
-------------------------------------------------------
Vendor: Mellanox
PN: MC2207130-003
SN: MT5555
Length: 3 m
-------------------------------------------------------
Port=19 Lid=0x0002 GUID=0x0002c903006e1430 Port Name=js01ib2/U1/P19
-------------------------------------------------------
Vendor: Mellanox
PN: MC2207130-009
SN:
`

func TestParseCablesDump(t *testing.T) {
	p := newTopology(t)
	require.NoError(t, p.ParseCablesDump(strings.NewReader(cablesDump)))

	for _, port := range []*fabric.Port{lookup(t, p, guidA, 20), lookup(t, p, guidB, 2)} {
		assert.Equal(t, "MT5555", port.Serial)
		assert.Equal(t, "MC2207130-003", port.PartNumber)
		assert.Equal(t, "3 m", port.Length)
	}

	// No serial number: the stanza adds nothing.
	a19 := lookup(t, p, guidA, 19)
	assert.Empty(t, a19.PartNumber)
	assert.Empty(t, p.Findings())
}

func TestCheckPorts(t *testing.T) {
	p := newTopology(t)
	require.NoError(t, p.ParseCSV(strings.NewReader(bulkCSV)))
	before := len(p.Findings())

	p.CheckPorts("FDR", "4x")

	want := []findingSummary{
		{Type: models.IssueDisabled, Description: "Port Physical State Disabled", Ports: []string{"js01ib2/U1/P19"}},
		{Type: models.IssueSpeed, Description: "Port Speed: SDR", Ports: []string{"js01ib3/U1/P2", "js01ib2/U1/P20"}},
		{Type: models.IssueSpeed, Description: "Port Speed: SDR", Ports: []string{"js01ib2/U1/P20", "js01ib3/U1/P2"}},
	}
	if diff := cmp.Diff(want, summarize(p.Findings()[before:])); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckPorts_localhost(t *testing.T) {
	p := NewParser(fabric.NewPortSet(nil), nil)
	line := "CA    44  1 0x0002c9030045f121 4x FDR - SW     2 17 0x0002c903006e1430 ( 'localhost HCA-1' - 'MF0;js01ib2:SX60XX/U1' )\n"
	require.NoError(t, p.ParseTopology(strings.NewReader(line)))

	p.CheckPorts("FDR", "4x")

	want := []findingSummary{
		{Type: models.IssueLabel, Description: "localhost", Ports: []string{"localhost/U1/P1"}},
	}
	if diff := cmp.Diff(want, summarize(p.Findings())); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckField(t *testing.T) {
	tests := []struct {
		value string
		kind  FieldKind
		ok    bool
		desc  string
		raw   string
	}{
		{"", FieldString, true, "", ""},
		{"", FieldInteger, false, "SN is empty instead of numbers", ""},
		{"MT1234", FieldString, true, "", ""},
		{"MT\x01", FieldString, false, "SN is non-ascii string", "SN: hexdump: 4d 54 01"},
		{strings.Repeat("a", MaxFieldLength+1), FieldString, false, "SN is too long of a string", strings.Repeat("a", MaxFieldLength+1)},
		{"12", FieldInteger, true, "", ""},
		{"1x", FieldInteger, false, "SN is invalid integer", "1x"},
		{"0x2c9", FieldHexInteger, true, "", ""},
		{"0xzz", FieldHexInteger, false, "SN is invalid base 16 integer", "0xzz"},
	}
	for _, tc := range tests {
		f, ok := CheckField("test", "SN", tc.value, tc.kind)
		if ok != tc.ok {
			t.Errorf("CheckField(%q) ok = %v, want %v", tc.value, ok, tc.ok)
			continue
		}
		if ok {
			continue
		}
		assert.Equal(t, models.IssueUnknown, f.Type)
		assert.Equal(t, tc.desc, f.Description)
		assert.Equal(t, tc.raw, f.RawText())
		assert.Equal(t, "test", f.Source)
	}
}
