package cli

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/plos/internal/value"
)

// decimalPattern is the decimal numeric literal grammar accepted for typed
// values. Go-only forms such as hex floats stay strings.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// guessValue types a command-line value: "true" and "false" become
// booleans, finite numbers become numbers, and everything else (including
// the empty string) stays a string.
func guessValue(s string) value.Value {
	switch s {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	trimmed := strings.TrimSpace(s)
	if !decimalPattern.MatchString(trimmed) {
		return value.String(s)
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return value.String(s)
	}
	return value.Number(f)
}

// splitPair splits "key=value" at the first '='.
func splitPair(arg string) (string, value.Value, error) {
	key, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return "", nil, fmt.Errorf("expected key=value, got %q", arg)
	}
	if key == "" {
		return "", nil, fmt.Errorf("empty key in %q", arg)
	}
	return key, guessValue(raw), nil
}

// parsePairs builds an object from key=value arguments.
func parsePairs(args []string) (value.Object, error) {
	obj := make(value.Object, len(args))
	for _, arg := range args {
		key, v, err := splitPair(arg)
		if err != nil {
			return nil, err
		}
		obj[key] = v
	}
	return obj, nil
}
