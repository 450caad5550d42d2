package backtest

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParameterSet represents a set of parameter values
type ParameterSet map[string]interface{}

// Clone creates a copy of the parameter set
func (ps ParameterSet) Clone() ParameterSet {
	clone := make(ParameterSet, len(ps))
	for k, v := range ps {
		clone[k] = v
	}
	return clone
}

// Merge returns a new set holding base values overridden by ps
func (ps ParameterSet) Merge(base ParameterSet) ParameterSet {
	merged := base.Clone()
	for k, v := range ps {
		merged[k] = v
	}
	return merged
}

// Keys returns the parameter names in sorted order
func (ps ParameterSet) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the set deterministically, e.g. "long_period=20 short_period=5"
func (ps ParameterSet) String() string {
	parts := make([]string, 0, len(ps))
	for _, k := range ps.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ps[k]))
	}
	return strings.Join(parts, " ")
}

// Float returns a numeric parameter as float64
func (ps ParameterSet) Float(name string) (float64, error) {
	v, ok := ps[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", name)
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q has non-numeric type %T", name, v)
	}
}

// Int returns a numeric parameter as int. Non-integral floats are rejected.
func (ps ParameterSet) Int(name string) (int, error) {
	f, err := ps.Float(name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parameter %q must be an integer, got %v", name, ps[name])
	}
	return int(f), nil
}

// Str returns a parameter formatted as a string
func (ps ParameterSet) Str(name string) (string, error) {
	v, ok := ps[name]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", name)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}
