// Package mirror gives one engine a locally cheap, observable view of
// a subset of the shared state, eventually consistent with the
// authoritative store.
package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/polyview-dev/polyview/internal/vault"
)

// Codec translates between a typed value and the serialized payload
// that crosses the transport. T must marshal to a JSON object, since
// a state payload is a mapping from string keys to JSON values.
type Codec[T any] interface {
	Encode(v T) (json.RawMessage, error)
	Decode(data json.RawMessage) (T, error)
}

// JSONCodec is the default codec: plain JSON marshaling.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (JSONCodec[T]) Decode(data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// sealedEnvelope is the payload shape produced by SealedCodec. The
// store and other engines only ever see the sealed hex string.
type sealedEnvelope struct {
	Sealed string `json:"sealed"`
}

// SealedCodec wraps another codec with AES-GCM encryption, for state
// types whose payloads must not be readable through the inspection
// surfaces. Every engine sharing the state needs the same key.
type SealedCodec[T any] struct {
	Key   []byte
	Inner Codec[T]
}

// NewSealedCodec builds a SealedCodec over the default JSON codec.
func NewSealedCodec[T any](key []byte) (SealedCodec[T], error) {
	if len(key) != vault.KeySize {
		return SealedCodec[T]{}, fmt.Errorf("sealed codec key must be %d bytes, got %d", vault.KeySize, len(key))
	}
	return SealedCodec[T]{Key: key, Inner: JSONCodec[T]{}}, nil
}

func (c SealedCodec[T]) Encode(v T) (json.RawMessage, error) {
	plain, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	sealed, err := vault.Seal(plain, c.Key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealedEnvelope{Sealed: sealed})
}

func (c SealedCodec[T]) Decode(data json.RawMessage) (T, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		var zero T
		return zero, err
	}
	plain, err := vault.Open(env.Sealed, c.Key)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Inner.Decode(plain)
}
