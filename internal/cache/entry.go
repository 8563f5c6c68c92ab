package cache

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// JSON is the default value serializer.
var JSON types.Serializer = jsonSerializer{}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, dest any) error { return json.Unmarshal(data, dest) }

// Metadata travels with every value stored in L2.
type Metadata struct {
	CreatedAt   time.Time `json:"createdAt"`
	LastAccess  time.Time `json:"lastAccess"`
	AccessCount int64     `json:"accessCount"`
	Size        int       `json:"size"`
	Compressed  bool      `json:"compressed"`
	// Binary marks a payload that was not valid JSON and is stored base64 encoded.
	Binary bool `json:"binary,omitempty"`
}

// Entry is a decoded L2 value.
type Entry[T any] struct {
	Value    T
	Metadata Metadata
}

// envelope is the stored form: {"value": ..., "metadata": {...}}. value is
// the serializer output inline when it is JSON, otherwise a base64 string.
type envelope struct {
	Value    json.RawMessage `json:"value"`
	Metadata Metadata        `json:"metadata"`
}

// encodeEntry serializes value into an envelope and returns the metadata as
// stored. Payloads larger than compressThreshold bytes are snappy-compressed;
// zero disables compression.
func encodeEntry[T any](value T, meta Metadata, serializer types.Serializer, compressThreshold int) ([]byte, Metadata, error) {
	payload, err := serializer.Marshal(value)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	meta.Size = len(payload)

	env := envelope{Metadata: meta}
	switch {
	case compressThreshold > 0 && len(payload) > compressThreshold:
		env.Metadata.Compressed = true
		env.Value, err = json.Marshal(base64.StdEncoding.EncodeToString(snappy.Encode(nil, payload)))
	case json.Valid(payload):
		env.Value = payload
	default:
		env.Metadata.Binary = true
		env.Value, err = json.Marshal(base64.StdEncoding.EncodeToString(payload))
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return data, env.Metadata, nil
}

// decodeEntry reverses encodeEntry. On any failure it returns a zero entry
// together with an error wrapping types.ErrSerializationFailed.
func decodeEntry[T any](data []byte, serializer types.Serializer) (Entry[T], error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: envelope: %w", types.ErrSerializationFailed, err)
	}
	if len(env.Value) == 0 {
		return Entry[T]{}, fmt.Errorf("%w: envelope has no value", types.ErrSerializationFailed)
	}

	payload := []byte(env.Value)
	if env.Metadata.Compressed || env.Metadata.Binary {
		var encoded string
		if err := json.Unmarshal(env.Value, &encoded); err != nil {
			return Entry[T]{}, fmt.Errorf("%w: value: %w", types.ErrSerializationFailed, err)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Entry[T]{}, fmt.Errorf("%w: value: %w", types.ErrSerializationFailed, err)
		}
		payload = raw
	}
	if env.Metadata.Compressed {
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return Entry[T]{}, fmt.Errorf("%w: snappy: %w", types.ErrSerializationFailed, err)
		}
		payload = raw
	}

	var value T
	if err := serializer.Unmarshal(payload, &value); err != nil {
		return Entry[T]{}, fmt.Errorf("%w: %w", types.ErrSerializationFailed, err)
	}
	return Entry[T]{Value: value, Metadata: env.Metadata}, nil
}

// IsDecodeError reports whether err came from decoding an L2 envelope.
func IsDecodeError(err error) bool {
	return errors.Is(err, types.ErrSerializationFailed)
}
