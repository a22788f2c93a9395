package fragcache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec converts fragment values to and from stored bytes. A nil value must
// encode to a payload that decodes back to nil.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec stores values as JSON. Numbers decode as json.Number so integer
// values survive a round trip unchanged.
type JSONCodec struct{}

// Encode marshals v; nil becomes null.
func (JSONCodec) Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	return body, nil
}

// Decode unmarshals data. An empty payload decodes to nil.
func (JSONCodec) Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	return out, nil
}
