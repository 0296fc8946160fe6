package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Convert re-encodes src into dst. It turns loosely typed parameter maps
// received on the wire into typed inputs.
func Convert(src, dst interface{}) error {
	data, err := EncodePayload(src)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := DecodePayload(data, dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ToMap converts a struct into a generic JSON object map.
func ToMap(v interface{}) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := Convert(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}
