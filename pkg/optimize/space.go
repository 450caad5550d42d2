// Package optimize searches a strategy parameter space for the candidate that
// maximizes (or minimizes) a simulation objective.
package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

// ============================================================================
// PARAMETER DEFINITION
// ============================================================================

// Kind defines the domain of a parameter
type Kind string

const (
	KindInteger     Kind = "integer"
	KindReal        Kind = "real"
	KindCategorical Kind = "categorical"
)

// RealGridPoints is the number of evenly spaced values a real parameter
// contributes to a grid
const RealGridPoints = 10

// ParseKind resolves a kind name, accepting "int" and "float" shorthands
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "integer", "int":
		return KindInteger, nil
	case "real", "float":
		return KindReal, nil
	case "categorical", "choice":
		return KindCategorical, nil
	}
	return "", fmt.Errorf("unknown parameter kind %q", name)
}

// Parameter represents a tunable parameter
type Parameter struct {
	Name    string        `json:"name" yaml:"name" mapstructure:"name"`
	Kind    Kind          `json:"kind" yaml:"kind" mapstructure:"kind"`
	Min     float64       `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max     float64       `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
	Step    float64       `json:"step,omitempty" yaml:"step,omitempty" mapstructure:"step"` // integer only, defaults to 1
	Choices []interface{} `json:"choices,omitempty" yaml:"choices,omitempty" mapstructure:"choices"`
}

// intStep returns the effective integer step
func (p Parameter) intStep() int {
	if p.Step == 0 {
		return 1
	}
	return int(p.Step)
}

// intValues returns the step-aligned integer values inside [min, max]
func (p Parameter) intValues() []int {
	lo, hi, step := int(p.Min), int(p.Max), p.intStep()
	values := make([]int, 0, (hi-lo)/step+1)
	for v := lo; v <= hi; v += step {
		values = append(values, v)
	}
	return values
}

// realValues returns RealGridPoints evenly spaced values across [min, max]
func (p Parameter) realValues() []float64 {
	values := make([]float64, RealGridPoints)
	width := (p.Max - p.Min) / float64(RealGridPoints-1)
	for i := range values {
		values[i] = p.Min + float64(i)*width
	}
	values[RealGridPoints-1] = p.Max
	return values
}

// Values returns the grid values of the parameter in declaration order
func (p Parameter) Values() []interface{} {
	switch p.Kind {
	case KindInteger:
		ints := p.intValues()
		values := make([]interface{}, len(ints))
		for i, v := range ints {
			values[i] = v
		}
		return values
	case KindReal:
		reals := p.realValues()
		values := make([]interface{}, len(reals))
		for i, v := range reals {
			values[i] = v
		}
		return values
	default:
		return append([]interface{}(nil), p.Choices...)
	}
}

// Draw samples one value uniformly from the parameter domain
func (p Parameter) Draw(rng *rand.Rand) interface{} {
	switch p.Kind {
	case KindInteger:
		step := p.intStep()
		count := (int(p.Max)-int(p.Min))/step + 1
		return int(p.Min) + rng.Intn(count)*step
	case KindReal:
		return p.Min + rng.Float64()*(p.Max-p.Min)
	default:
		return p.Choices[rng.Intn(len(p.Choices))]
	}
}

// ============================================================================
// VALIDATION
// ============================================================================

// ValidationError represents a rejected search setting
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("search validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// orNil returns nil for an empty collection so callers can compare against nil
func (ve ValidationErrors) orNil() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// ValidateParameters checks every parameter definition and reports all
// problems at once
func ValidateParameters(params []Parameter) error {
	var errs ValidationErrors

	if len(params) == 0 {
		return ValidationErrors{{Field: "parameters", Message: "at least one parameter is required"}}
	}

	seen := make(map[string]bool, len(params))
	for i, p := range params {
		field := fmt.Sprintf("parameters[%d]", i)
		if p.Name != "" {
			field = "parameters." + p.Name
		}

		if p.Name == "" {
			errs = append(errs, ValidationError{Field: field, Message: "name is required"})
		} else if seen[p.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate parameter name"})
		}
		seen[p.Name] = true

		errs = append(errs, validateParameter(field, p)...)
	}

	return errs.orNil()
}

func validateParameter(field string, p Parameter) ValidationErrors {
	var errs ValidationErrors

	switch p.Kind {
	case KindInteger, KindReal:
		if math.IsNaN(p.Min) || math.IsNaN(p.Max) || math.IsInf(p.Min, 0) || math.IsInf(p.Max, 0) {
			errs = append(errs, ValidationError{Field: field, Message: "bounds must be finite"})
			break
		}
		if p.Min >= p.Max {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("min (%v) must be less than max (%v)", p.Min, p.Max),
			})
		}
		if p.Kind == KindInteger {
			if p.Min != math.Trunc(p.Min) || p.Max != math.Trunc(p.Max) {
				errs = append(errs, ValidationError{Field: field, Message: "integer bounds must be whole numbers"})
			}
			if p.Step < 0 || p.Step != math.Trunc(p.Step) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("step must be a positive whole number, got %v", p.Step),
				})
			}
		}
		if len(p.Choices) > 0 {
			errs = append(errs, ValidationError{Field: field, Message: "choices are only allowed for categorical parameters"})
		}

	case KindCategorical:
		if len(p.Choices) == 0 {
			errs = append(errs, ValidationError{Field: field, Message: "choices must not be empty"})
			break
		}
		seen := make(map[string]bool, len(p.Choices))
		for _, c := range p.Choices {
			key := fmt.Sprintf("%T:%v", c, c)
			if seen[key] {
				errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate choice %v", c)})
			}
			seen[key] = true
		}

	default:
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown kind %q", p.Kind)})
	}

	return errs
}

// ============================================================================
// GRID AND SAMPLING
// ============================================================================

// EnumerateGrid returns the Cartesian product of every parameter's grid
// values. The last parameter varies fastest.
func EnumerateGrid(params []Parameter) []backtest.ParameterSet {
	values := make([][]interface{}, len(params))
	total := 1
	for i, p := range params {
		values[i] = p.Values()
		total *= len(values[i])
	}
	if len(params) == 0 || total == 0 {
		return nil
	}

	grid := make([]backtest.ParameterSet, 0, total)
	indexes := make([]int, len(params))
	for {
		set := make(backtest.ParameterSet, len(params))
		for i, p := range params {
			set[p.Name] = values[i][indexes[i]]
		}
		grid = append(grid, set)

		// Advance the odometer from the last parameter
		pos := len(params) - 1
		for pos >= 0 {
			indexes[pos]++
			if indexes[pos] < len(values[pos]) {
				break
			}
			indexes[pos] = 0
			pos--
		}
		if pos < 0 {
			return grid
		}
	}
}

// GridSize returns the number of candidates EnumerateGrid would produce
func GridSize(params []Parameter) int {
	if len(params) == 0 {
		return 0
	}
	total := 1
	for _, p := range params {
		switch p.Kind {
		case KindInteger:
			total *= (int(p.Max)-int(p.Min))/p.intStep() + 1
		case KindReal:
			total *= RealGridPoints
		default:
			total *= len(p.Choices)
		}
	}
	return total
}

// SampleOne draws one random parameter set
func SampleOne(params []Parameter, rng *rand.Rand) backtest.ParameterSet {
	set := make(backtest.ParameterSet, len(params))
	for _, p := range params {
		set[p.Name] = p.Draw(rng)
	}
	return set
}

// Sample draws n independent random parameter sets
func Sample(params []Parameter, n int, rng *rand.Rand) []backtest.ParameterSet {
	sets := make([]backtest.ParameterSet, n)
	for i := range sets {
		sets[i] = SampleOne(params, rng)
	}
	return sets
}
