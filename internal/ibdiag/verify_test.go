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

func TestParseVendorLabel(t *testing.T) {
	tests := []struct {
		label   string
		logical string
	}{
		{"r1i0s0c0.16", "r1i0s0c0.16"},
		{"r2i0s0c1.20", "r1i4s0c1.20"},
		{"r10i2s0c1.20", "r5i6s0c1.20"},
		{"r3i1n17/U1/P1", "r2i1n17/P1"},
		{"001IRU2-0-1-14", "r1i2s0c1.14"},
	}
	for _, tc := range tests {
		v, ok := ParseVendorLabel(tc.label)
		require.True(t, ok, tc.label)
		assert.Equal(t, tc.logical, v.Logical().String(), tc.label)
	}

	_, ok := ParseVendorLabel("js01ib2/U1/P3")
	assert.False(t, ok)
}

func TestVendorLabel_Candidates(t *testing.T) {
	v, ok := ParseVendorLabel("r2i0s0c1.20")
	require.True(t, ok)
	got := v.Logical().Candidates()
	require.Len(t, got, 2)
	assert.Equal(t, "r1i4s0 SW1 SwitchX -  Mellanox Technologies", got[0].Name)
	assert.Equal(t, "r1i4s0 SW1", got[1].Name)
	assert.Equal(t, 20, *got[1].Num)

	v, ok = ParseVendorLabel("r1i3n17")
	require.True(t, ok)
	got = v.Logical().Candidates()
	require.Len(t, got, 1)
	assert.Equal(t, "r1i3n17", got[0].Name)
	assert.Equal(t, "1", *got[0].HCA)
	assert.Equal(t, 1, *got[0].Num)
}

const verifyTopology = `SW     2  3 0x7cfe900300bdf4f0 4x EDR - SW     3  3 0x7cfe900300bdf500 ( 'r1i0s0 SW0' - 'r1i0s0 SW1' )
SW     2 16 0x7cfe900300bdf4f0 4x EDR - CA     9  1 0x7cfe900300bdf600 ( 'r1i0s0 SW0' - 'r1i0n3 HCA-1' )
`

const verifyLog = `NOT FOUND: r1i0s0c0.16 r1i0n3/U1/P1
MISCABLE:
	FOUND:    r1i0s0c0.3 <---> r1i0s0c1.3
	EXPECTED: r1i0s0c0.3 <---> r1i0s0c1.4
NOT FOUND: r2i2s2 INTERNAL port 12 to 12
ERROR: unable to read r9i9s9
`

func TestParseVerification(t *testing.T) {
	p := NewParser(fabric.NewPortSet(nil), nil)
	require.NoError(t, p.ParseTopology(strings.NewReader(verifyTopology)))
	require.NoError(t, p.ParseVerification(strings.NewReader(verifyLog)))

	got := p.Findings()
	require.Len(t, got, 4)

	want := []findingSummary{
		{
			Type:        models.IssueMissing,
			Description: "Missing cable",
			Raw:         "NOT FOUND: r1i0s0c0.16 r1i0n3/U1/P1",
			Ports:       []string{"r1i0s0 SW0/P16", "r1i0n3/U1/P1"},
		},
		{
			Type:        models.IssueUnexpected,
			Description: "Unexpected cable",
			Raw:         "FOUND:    r1i0s0c0.3 <---> r1i0s0c1.3",
			Ports:       []string{"r1i0s0 SW0/P3", "r1i0s0 SW1/P3"},
		},
		{
			Type:        models.IssueMissing,
			Description: "Missing cable",
			Raw:         "NOT FOUND: r2i2s2 INTERNAL port 12 to 12",
			Ports:       []string{"None", "None"},
		},
		{
			Type:        models.IssueUnknown,
			Description: "Unknown Error detected",
			Raw:         "ERROR: unable to read r9i9s9",
		},
	}
	if diff := cmp.Diff(want, summarize(got)); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}
