package types

import (
	"encoding/json"
	"log/slog"
)

const redacted = "[REDACTED]"

// SecretString hides its value from fmt, JSON and slog output.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}

func (s SecretString) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// UnmarshalText lets config decoders (viper, env) fill a SecretString from plain text.
func (s *SecretString) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}
