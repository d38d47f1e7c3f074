package cache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is the serializer/deserializer pair used to put values into a
// Store.
type Codec struct {
	Marshal   func(v any) ([]byte, error)
	Unmarshal func(data []byte, v any) error
}

// Msgpack returns a MessagePack codec.
func Msgpack() Codec {
	return Codec{
		Marshal: func(v any) ([]byte, error) {
			data, err := msgpack.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
			}
			return data, nil
		},
		Unmarshal: func(data []byte, v any) error {
			if len(data) == 0 {
				return fmt.Errorf("empty MessagePack data")
			}
			if err := msgpack.Unmarshal(data, v); err != nil {
				return fmt.Errorf("failed to decode MessagePack: %w", err)
			}
			return nil
		},
	}
}
