package commsutil

import "encoding/json"

// EncodePayload serializes a broadcast payload to JSON bytes. Transaction
// traffic uses the binary wire codec; JSON is only for observers.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
