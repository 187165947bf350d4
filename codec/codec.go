// Package codec turns cached values into bytes for the secondary tier.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes values of type V.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// JSON encodes values with encoding/json. Only exported struct fields survive.
type JSON[V any] struct{}

// Marshal encodes v as JSON.
func (JSON[V]) Marshal(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes JSON data into a new V.
func (JSON[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: json unmarshal: %w", err)
	}
	return v, nil
}

// Msgpack encodes values with MessagePack: smaller and faster than JSON, and
// it keeps time.Time and []byte without string round-trips.
type Msgpack[V any] struct{}

// Marshal encodes v as MessagePack.
func (Msgpack[V]) Marshal(v V) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: msgpack marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes MessagePack data into a new V.
func (Msgpack[V]) Unmarshal(data []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: msgpack unmarshal: %w", err)
	}
	return v, nil
}

var (
	_ Codec[any] = JSON[any]{}
	_ Codec[any] = Msgpack[any]{}
)
