// Package distance scores a record against a reference vector with Euclidean
// or cosine distance, using decimal arithmetic and round-half-up rescaling.
package distance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parameter names accepted by Parse.
const (
	ParamReference    = "reference"
	ParamInput        = "input"
	ParamSeparator    = "separator"
	ParamDistanceType = "distance_type"
	ParamScale        = "scale"
)

const (
	DefaultSeparator = ","
	DefaultScale     = 2
	// MaxScale bounds the rescaling work done per evaluation.
	MaxScale = 64
)

// Kind selects the distance algorithm.
type Kind int

const (
	Euclidean Kind = iota
	Cosine
)

func (k Kind) String() string {
	switch k {
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind parses a distance_type value.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "euclidean":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	default:
		return 0, invalidConfig("%s must be 'euclidean' or 'cosine', got %q", ParamDistanceType, s)
	}
}

// Field is one named component of the reference vector.
type Field struct {
	Name   string
	Values []int64
}

// Params is a validated, immutable scoring configuration. It is safe for
// concurrent use by any number of evaluations.
type Params struct {
	fields    []Field
	dim       int
	separator string
	kind      Kind
	scale     int32
}

// Kind returns the configured distance algorithm.
func (p *Params) Kind() Kind { return p.kind }

// Scale returns the number of decimal digits the score is rounded to.
func (p *Params) Scale() int { return int(p.scale) }

// Separator returns the token used to split delimited values.
func (p *Params) Separator() string { return p.separator }

// Dim returns the total number of reference elements across all fields.
func (p *Params) Dim() int { return p.dim }

// Fields returns a copy of the reference fields in evaluation order.
func (p *Params) Fields() []Field {
	out := make([]Field, len(p.fields))
	for i, f := range p.fields {
		out[i] = Field{Name: f.Name, Values: append([]int64(nil), f.Values...)}
	}
	return out
}

// Parse validates raw script parameters. The reference may be given under
// "reference" or "input" and may be a single delimited field
// ({"tags": "1,2,3"}), one scalar per field ({"a": 1, "b": 2}), or lists.
// Fields are evaluated in name order.
func Parse(raw map[string]any) (*Params, error) {
	p := &Params{
		separator: DefaultSeparator,
		kind:      Euclidean,
		scale:     DefaultScale,
	}

	ref, err := referenceMap(raw)
	if err != nil {
		return nil, err
	}

	if v, ok := raw[ParamSeparator]; ok {
		s, err := scalarString(v)
		if err != nil {
			return nil, invalidConfig("parsing %s: %v", ParamSeparator, err)
		}
		if s == "" {
			return nil, invalidConfig("%s cannot be empty", ParamSeparator)
		}
		p.separator = s
	}

	names := make([]string, 0, len(ref))
	for name := range ref {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values, err := toInts(ref[name], p.separator)
		if err != nil {
			return nil, invalidConfig("parsing reference field %q: %v", name, err)
		}
		if len(values) == 0 {
			return nil, invalidConfig("reference field %q has no elements, check the value or %s", name, ParamSeparator)
		}
		p.fields = append(p.fields, Field{Name: name, Values: values})
		p.dim += len(values)
	}

	if v, ok := raw[ParamDistanceType]; ok {
		s, err := scalarString(v)
		if err != nil {
			return nil, invalidConfig("parsing %s: %v", ParamDistanceType, err)
		}
		if p.kind, err = ParseKind(s); err != nil {
			return nil, err
		}
	}

	if v, ok := raw[ParamScale]; ok {
		if p.scale, err = parseScale(v); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func referenceMap(raw map[string]any) (map[string]any, error) {
	v, hasRef := raw[ParamReference]
	in, hasInput := raw[ParamInput]
	switch {
	case hasRef && hasInput:
		return nil, invalidConfig("only one of %s and %s may be set", ParamReference, ParamInput)
	case hasInput:
		v = in
	case !hasRef:
		return nil, invalidConfig("missing parameter %s", ParamReference)
	}

	var ref map[string]any
	switch m := v.(type) {
	case map[string]any:
		ref = m
	case Source:
		ref = m
	case map[string]string:
		ref = make(map[string]any, len(m))
		for k, s := range m {
			ref[k] = s
		}
	default:
		return nil, invalidConfig("%s must be a mapping of field name to values, got %T", ParamReference, v)
	}
	if len(ref) == 0 {
		return nil, invalidConfig("%s is empty", ParamReference)
	}
	return ref, nil
}

func parseScale(v any) (int32, error) {
	s, err := scalarString(v)
	if err != nil {
		return 0, invalidConfig("parsing %s: %v", ParamScale, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, invalidConfig("%s must be an integer, got %q", ParamScale, s)
	}
	if n < 0 || n > MaxScale {
		return 0, invalidConfig("%s must be between 0 and %d, got %d", ParamScale, MaxScale, n)
	}
	return int32(n), nil
}
