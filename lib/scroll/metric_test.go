package scroll

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricReachedEnd(t *testing.T) {
	testCases := []struct {
		name     string
		offset   float64
		viewport float64
		document float64
		want     bool
	}{
		{name: "exactly at bottom", offset: 800, viewport: 600, document: 1400, want: true},
		{name: "one pixel short", offset: 799, viewport: 600, document: 1400, want: false},
		{name: "past bottom (overscroll)", offset: 900, viewport: 600, document: 1400, want: true},
		{name: "top of long page", offset: 0, viewport: 600, document: 5000, want: false},
		{name: "page shorter than viewport", offset: 0, viewport: 900, document: 400, want: true},
		{name: "fractional offset", offset: 799.5, viewport: 600.5, document: 1400, want: true},
		{name: "empty document", offset: 0, viewport: 0, document: 0, want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetric(tc.offset, tc.viewport, tc.document)
			assert.Equal(t, tc.want, m.ReachedEnd())
			assert.Equal(t, tc.offset, m.Offset())
			assert.Equal(t, tc.viewport, m.ViewportHeight())
			assert.Equal(t, tc.document, m.DocumentHeight())
		})
	}
}

func TestReachedEndMatchesDefinition(t *testing.T) {
	for offset := 0.0; offset <= 1000; offset += 125 {
		for viewport := 0.0; viewport <= 1000; viewport += 250 {
			for document := 0.0; document <= 2000; document += 200 {
				m := NewMetric(offset, viewport, document)
				require.Equal(t, offset+viewport >= document, m.ReachedEnd(), "offset=%v viewport=%v document=%v", offset, viewport, document)
			}
		}
	}
}

func TestPayloadWireForm(t *testing.T) {
	m := NewMetric(800, 600, 1400)
	data, err := json.Marshal(m.Payload())
	require.NoError(t, err)
	assert.JSONEq(t, `[800, true]`, string(data))
	// offset, not the viewport's bottom edge
	assert.Equal(t, m.Offset(), m.Payload().Offset)
	assert.Equal(t, 1400.0, m.Bottom())

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`[12.5,false]`), &p))
	assert.Equal(t, Payload{Offset: 12.5}, p)

	require.Error(t, json.Unmarshal([]byte(`[1]`), &p))
	require.Error(t, json.Unmarshal([]byte(`{"offset":1}`), &p))
	require.Error(t, json.Unmarshal([]byte(`["x",true]`), &p))
}

func TestFromStateAndBottom(t *testing.T) {
	m := FromState(State{Offset: 100, ViewportHeight: 700, DocumentHeight: 3000})
	assert.Equal(t, 800.0, m.Bottom())
	assert.False(t, m.ReachedEnd())
	assert.Equal(t, Snapshot{Offset: 100, ViewportHeight: 700, DocumentHeight: 3000}, m.Snapshot())
}
