package scroll

import (
	"encoding/json"
	"fmt"
)

// State is the raw scroll geometry read from the page.
type State struct {
	Offset         float64 `json:"offset"`
	ViewportHeight float64 `json:"viewportHeight"`
	DocumentHeight float64 `json:"documentHeight"`
}

// Metric is a normalized scroll reading. Values are fixed at construction.
type Metric struct {
	offset         float64
	viewportHeight float64
	documentHeight float64
	reachedEnd     bool
}

func NewMetric(offset, viewportHeight, documentHeight float64) Metric {
	return Metric{
		offset:         offset,
		viewportHeight: viewportHeight,
		documentHeight: documentHeight,
		reachedEnd:     offset+viewportHeight >= documentHeight,
	}
}

// FromState builds a Metric from a page reading.
func FromState(s State) Metric {
	return NewMetric(s.Offset, s.ViewportHeight, s.DocumentHeight)
}

func (m Metric) Offset() float64         { return m.offset }
func (m Metric) ViewportHeight() float64 { return m.viewportHeight }
func (m Metric) DocumentHeight() float64 { return m.documentHeight }

// ReachedEnd reports whether the bottom of the viewport touches or passes
// the bottom of the document.
func (m Metric) ReachedEnd() bool { return m.reachedEnd }

// Bottom is the document coordinate of the viewport's bottom edge.
func (m Metric) Bottom() float64 { return m.offset + m.viewportHeight }

func (m Metric) String() string {
	return fmt.Sprintf("offset=%g viewport=%g document=%g end=%t", m.offset, m.viewportHeight, m.documentHeight, m.reachedEnd)
}

// Payload is the wire form of a Metric on the scroll-metric channel: the
// tuple [offset, reachedEnd].
type Payload struct {
	Offset     float64
	ReachedEnd bool
}

// Payload is the wire form of m. It carries the scroll offset, not the
// bottom edge of the viewport; clients that track the bottom edge add the
// viewport height themselves or use Bottom.
func (m Metric) Payload() Payload {
	return Payload{Offset: m.offset, ReachedEnd: m.reachedEnd}
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Offset, p.ReachedEnd})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scroll payload: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("scroll payload: want 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Offset); err != nil {
		return fmt.Errorf("scroll payload offset: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.ReachedEnd); err != nil {
		return fmt.Errorf("scroll payload reachedEnd: %w", err)
	}
	return nil
}

// Snapshot is the JSON-friendly view used by status reporting.
type Snapshot struct {
	Offset         float64 `json:"offset"`
	ViewportHeight float64 `json:"viewportHeight"`
	DocumentHeight float64 `json:"documentHeight"`
	ReachedEnd     bool    `json:"reachedEnd"`
}

func (m Metric) Snapshot() Snapshot {
	return Snapshot{
		Offset:         m.offset,
		ViewportHeight: m.viewportHeight,
		DocumentHeight: m.documentHeight,
		ReachedEnd:     m.reachedEnd,
	}
}
