package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WrappedWarning is recorded when the JSON had to be cut out of surrounding prose.
const WrappedWarning = "JSON was wrapped in additional text"

// Parser turns raw model text into generic JSON data.
type Parser interface {
	Parse(raw string) (data interface{}, warnings []string, err error)
}

// Parse decodes raw as JSON. Numbers are kept as json.Number. Unless the
// validator is strict, a failed direct parse falls back to the outermost
// {...} and then [...] substring.
func (v *Validator) Parse(raw string) (interface{}, []string, error) {
	data, err := decode(raw)
	if err == nil {
		return data, nil, nil
	}
	if v.strict {
		return nil, nil, err
	}

	for _, candidate := range embedded(raw) {
		if recovered, rerr := decode(candidate); rerr == nil {
			return recovered, []string{WrappedWarning}, nil
		}
	}
	return nil, nil, err
}

func decode(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var out interface{}
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty response")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected content after JSON value at offset %d", dec.InputOffset())
	}
	return out, nil
}

// embedded returns the greedy object candidate followed by the greedy array candidate.
func embedded(s string) []string {
	var out []string
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(s, pair[0])
		end := strings.LastIndex(s, pair[1])
		if start >= 0 && end > start {
			out = append(out, s[start:end+1])
		}
	}
	return out
}

// Decode converts generic JSON data into a typed value.
func Decode(data interface{}, out interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal parsed data: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode parsed data: %w", err)
	}
	return nil
}
