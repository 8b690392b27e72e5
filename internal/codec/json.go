package codec

import (
	"encoding/json"
	"io"
)

// JSON implements Marshaler and Unmarshaler on top of encoding/json.
// The Strand wire format is JSON throughout, including the persisted
// continuation token shape.
type JSON struct{}

func NewJSON() *JSON {
	return &JSON{}
}

func (c *JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (c *JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (c *JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
