package jsonx

import "encoding/json"

// Decode unmarshals a bus payload into dst. Payloads arrive either as raw
// JSON ([]byte or string) or as an already-decoded value (map/struct from an
// in-process publisher); the latter is round-tripped through json.Marshal.
func Decode[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
