package nn

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type fcnRecord struct {
	Layers []LayerSpec `json:"layers"`
	Params []float64   `json:"params"`
}

func (n *FCN) MarshalJSON() ([]byte, error) {
	return json.Marshal(fcnRecord{Layers: n.layers, Params: n.params})
}

// UnmarshalJSON rejects unknown fields and parameter vectors that do not
// match the layer layout.
func (n *FCN) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec fcnRecord
	if err := dec.Decode(&rec); err != nil {
		return fmt.Errorf("decode network: %w", err)
	}
	decoded, err := NewFCN(rec.Layers)
	if err != nil {
		return err
	}
	if rec.Params != nil {
		if err := decoded.SetParameters(rec.Params); err != nil {
			return err
		}
	}
	*n = *decoded
	return nil
}
