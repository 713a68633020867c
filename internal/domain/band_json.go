package domain

import (
	"encoding/json"
	"math"
)

// bandJSON is the wire form of Band. encoding/json rejects NaN, so missing
// pixels travel as null.
type bandJSON struct {
	Name   string     `json:"name"`
	Rows   int        `json:"rows"`
	Cols   int        `json:"cols"`
	Values []*float64 `json:"values"`
}

// MarshalJSON encodes NaN pixels as null.
func (b Band) MarshalJSON() ([]byte, error) {
	out := bandJSON{Name: b.Name, Rows: b.Rows, Cols: b.Cols, Values: make([]*float64, len(b.Values))}
	for i := range b.Values {
		if !math.IsNaN(b.Values[i]) {
			out.Values[i] = &b.Values[i]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null pixels as NaN.
func (b *Band) UnmarshalJSON(data []byte) error {
	var in bandJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.Name, b.Rows, b.Cols = in.Name, in.Rows, in.Cols
	b.Values = make([]float64, len(in.Values))
	for i, v := range in.Values {
		if v == nil {
			b.Values[i] = math.NaN()
			continue
		}
		b.Values[i] = *v
	}
	return nil
}
