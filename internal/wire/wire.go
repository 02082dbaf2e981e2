// Package wire defines the line-oriented protocol spoken between the
// coordinator and camera nodes.
//
// Nodes emit one JSON array per line while streaming, each element a
// {"id": <int>, "pos": [x, y]} record; an empty array means no markers were
// visible that frame. The coordinator sends single-line plain-text commands.
// Any line that does not parse as the expected shape is discarded by the
// receiver: partial reads across a line boundary are normal during
// connect/disconnect and must not be treated as protocol violations.
package wire

import (
	"encoding/json"
	"fmt"
)

// Commands understood by camera nodes. Nodes acknowledge and ignore commands
// they do not recognise, which leaves room for protocol growth.
const (
	CmdStartStream = "start_stream"
	CmdStopStream  = "stop_stream"
)

// DefaultMarkerSetSize is the number of distinct marker identifiers a
// deployment tracks by default (ids 0..N-1), matching a 50-symbol fiducial
// dictionary.
const DefaultMarkerSetSize = 50

// Marker is a single node's sighting of one fiducial marker: the marker
// identifier and the centre of its image quadrilateral in pixel coordinates.
type Marker struct {
	ID  int        `json:"id"`
	Pos [2]float64 `json:"pos"`
}

// ParseDataLine decodes one data line into marker records.
//
// maxID bounds the accepted marker identifiers: records with id outside
// [0, maxID) are dropped individually, without failing the rest of the line.
// A maxID of zero disables the bound. An empty array is valid and yields an
// empty slice.
func ParseDataLine(line []byte, maxID int) ([]Marker, error) {
	var raw []struct {
		ID  *int      `json:"id"`
		Pos []float64 `json:"pos"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("decode data line: %w", err)
	}

	markers := make([]Marker, 0, len(raw))
	for _, r := range raw {
		if r.ID == nil || len(r.Pos) != 2 {
			continue
		}
		if *r.ID < 0 || (maxID > 0 && *r.ID >= maxID) {
			continue
		}
		markers = append(markers, Marker{ID: *r.ID, Pos: [2]float64{r.Pos[0], r.Pos[1]}})
	}
	return markers, nil
}

// EncodeDataLine serialises marker records as one newline-terminated data
// line, the form nodes put on the wire each frame.
func EncodeDataLine(markers []Marker) ([]byte, error) {
	if markers == nil {
		markers = []Marker{}
	}
	b, err := json.Marshal(markers)
	if err != nil {
		return nil, fmt.Errorf("encode data line: %w", err)
	}
	return append(b, '\n'), nil
}
