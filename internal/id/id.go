// Package id generates and parses the identifiers used by the receiver.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// suffixAlphabet avoids '.', '-' and '_' so suffixes can sit inside
// dot- and dash-separated file names.
const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewMention returns a fresh mention ID (random UUID, canonical form).
func NewMention() string {
	return uuid.NewString()
}

// ParseMention validates a mention ID taken from a URL and returns it in
// canonical lower-case form. Braced and urn:uuid: forms are accepted.
func ParseMention(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse mention id %q: %w", s, err)
	}
	return u.String(), nil
}

// Suffix returns a short random token of n characters from a lower-case
// alphanumeric alphabet.
func Suffix(n int) (string, error) {
	s, err := gonanoid.Generate(suffixAlphabet, n)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return s, nil
}
