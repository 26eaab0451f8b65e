package config

import (
	"os"

	"github.com/pkg/errors"
)

// LoadFile reads and parses the configuration file at path.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %q", path)
	}
	return LoadString(string(data))
}

// LoadString parses the directive-based configuration grammar described
// in spec.md §4.1 and original_source/Config.cpp/.hpp, producing a
// validated Tables ready for internal/conn to match requests against.
func LoadString(text string) (*Tables, error) {
	tokens := tokenize(text)
	directives, blocks, err := parseTree(tokens)
	if err != nil {
		return nil, errors.Wrap(err, "config: parse error")
	}
	t, err := translate(directives, blocks)
	if err != nil {
		return nil, errors.Wrap(err, "config: validation error")
	}
	return t, nil
}
