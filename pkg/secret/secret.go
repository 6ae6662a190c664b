// Package secret wraps credentials so they never leak through formatting,
// logging, or serialization by accident.
package secret

import "log/slog"

// Redacted replaces the value wherever a Secret is formatted.
const Redacted = "<SECRET>"

// Secret holds a credential. Formatting it through fmt, slog, or JSON yields
// Redacted; the value is only reachable through Expose.
type Secret struct {
	value []byte
}

// New wraps a credential string.
func New(value string) Secret {
	return Secret{value: []byte(value)}
}

// Expose returns the plaintext value.
func (s *Secret) Expose() string {
	return string(s.value)
}

// ExposeBytes returns the plaintext value as bytes. The slice aliases the
// secret's storage; callers must not hold on to it.
func (s *Secret) ExposeBytes() []byte {
	return s.value
}

// IsEmpty reports whether no credential is set.
func (s *Secret) IsEmpty() bool {
	return len(s.value) == 0
}

// Wipe overwrites the stored value.
func (s *Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
}

func (s Secret) String() string {
	return Redacted
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return Redacted
}

// LogValue keeps slog output redacted.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(Redacted)
}

// MarshalJSON redacts the value. Secrets go into configuration, never out.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}

// UnmarshalText accepts the plaintext form used in configuration files.
func (s *Secret) UnmarshalText(text []byte) error {
	s.value = append([]byte(nil), text...)
	return nil
}
