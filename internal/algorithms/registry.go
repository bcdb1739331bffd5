package algorithms

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/signalsfoundry/amoebot-simulator/core"
)

var (
	// ErrUnknownAlgorithm indicates a name missing from the registry.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrUnknownParameter indicates a parameter the algorithm does not declare.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrInvalidParameter indicates a value that does not parse or is out of range.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ParamType enumerates supported parameter value kinds.
type ParamType string

const (
	// ParamTypeInt denotes integer-valued parameters.
	ParamTypeInt ParamType = "int"
	// ParamTypeFloat denotes floating-point parameters.
	ParamTypeFloat ParamType = "float"
	// ParamTypeBool denotes boolean parameters.
	ParamTypeBool ParamType = "bool"
)

// Parameter describes a single tunable value exposed by an algorithm.
type Parameter struct {
	Key         string    `json:"key"`
	Type        ParamType `json:"type"`
	Default     string    `json:"default"`
	Description string    `json:"description"`
}

// Params holds parsed parameter values keyed by Parameter.Key.
type Params map[string]any

// Int returns an integer parameter, or 0 if it is missing.
func (p Params) Int(key string) int {
	v, _ := p[key].(int)
	return v
}

// Float returns a floating-point parameter, or 0 if it is missing.
func (p Params) Float(key string) float64 {
	v, _ := p[key].(float64)
	return v
}

// Bool returns a boolean parameter, or false if it is missing.
func (p Params) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Descriptor registers an algorithm under a name.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
	// New builds the per-amoebot factory from parsed parameters.
	New func(Params) (core.AlgorithmFactory, error)
}

var registry = map[string]Descriptor{}

// Register adds an algorithm. It is called from init functions, so a
// malformed or duplicate descriptor panics.
func Register(d Descriptor) {
	if d.Name == "" || d.New == nil {
		panic("algorithms: descriptor needs a name and a constructor")
	}
	if _, exists := registry[d.Name]; exists {
		panic(fmt.Sprintf("algorithms: %q registered twice", d.Name))
	}
	for _, p := range d.Parameters {
		if _, err := parse(p, p.Default); err != nil {
			panic(fmt.Sprintf("algorithms: %q default: %v", d.Name, err))
		}
	}
	registry[d.Name] = d
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[name]
	return d, ok
}

// List returns all descriptors ordered by name.
func List() []Descriptor {
	out := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build resolves name and raw flag-style values into a factory.
func Build(name string, raw map[string]string) (core.AlgorithmFactory, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	params, err := d.Resolve(raw)
	if err != nil {
		return nil, err
	}
	return d.New(params)
}

// Resolve parses raw values, filling in defaults for missing keys.
func (d Descriptor) Resolve(raw map[string]string) (Params, error) {
	declared := make(map[string]Parameter, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Key] = p
	}
	for key := range raw {
		if _, ok := declared[key]; !ok {
			return nil, fmt.Errorf("%s: %w: %q", d.Name, ErrUnknownParameter, key)
		}
	}

	params := make(Params, len(d.Parameters))
	for _, p := range d.Parameters {
		value := p.Default
		if v, ok := raw[p.Key]; ok {
			value = v
		}
		parsed, err := parse(p, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		params[p.Key] = parsed
	}
	return params, nil
}

func parse(p Parameter, value string) (any, error) {
	switch p.Type {
	case ParamTypeInt:
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an int", ErrInvalidParameter, p.Key, value)
		}
		return v, nil
	case ParamTypeFloat:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a float", ErrInvalidParameter, p.Key, value)
		}
		return v, nil
	case ParamTypeBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a bool", ErrInvalidParameter, p.Key, value)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s has unsupported type %q", ErrInvalidParameter, p.Key, p.Type)
}
