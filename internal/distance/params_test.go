package distance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	p, err := Parse(map[string]any{
		"reference": map[string]any{"vec": "1, 2,3"},
	})
	require.NoError(t, err)

	assert.Equal(t, Euclidean, p.Kind())
	assert.Equal(t, DefaultScale, p.Scale())
	assert.Equal(t, ",", p.Separator())
	assert.Equal(t, 3, p.Dim())
	assert.Equal(t, []Field{{Name: "vec", Values: []int64{1, 2, 3}}}, p.Fields())
}

func TestParse_InputAlias(t *testing.T) {
	p, err := Parse(map[string]any{
		"input":         map[string]any{"vec": "4;5;6"},
		"separator":     ";",
		"distance_type": "cosine",
		"scale":         4,
	})
	require.NoError(t, err)

	assert.Equal(t, Cosine, p.Kind())
	assert.Equal(t, 4, p.Scale())
	assert.Equal(t, []Field{{Name: "vec", Values: []int64{4, 5, 6}}}, p.Fields())
}

func TestParse_MultiFieldScalars(t *testing.T) {
	p, err := Parse(map[string]any{
		"reference": map[string]any{
			"height": 180,
			"age":    float64(30),
			"weight": "75",
		},
	})
	require.NoError(t, err)

	// fields are ordered by name
	assert.Equal(t, []Field{
		{Name: "age", Values: []int64{30}},
		{Name: "height", Values: []int64{180}},
		{Name: "weight", Values: []int64{75}},
	}, p.Fields())
	assert.Equal(t, 3, p.Dim())
}

func TestParse_ListValues(t *testing.T) {
	p, err := Parse(map[string]any{
		"reference": map[string]any{"vec": []any{1, float64(-2), "3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -2, 3}, p.Fields()[0].Values)
}

func TestParse_TrailingSeparatorIgnored(t *testing.T) {
	p, err := Parse(map[string]any{
		"reference": map[string]any{"vec": "1,2,"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, p.Fields()[0].Values)
}

func TestParse_SeparatorIsLiteral(t *testing.T) {
	p, err := Parse(map[string]any{
		"reference": map[string]any{"vec": "7|8|9"},
		"separator": "|",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8, 9}, p.Fields()[0].Values)
}

func TestParse_Scale(t *testing.T) {
	tests := []struct {
		name  string
		scale any
		want  int
	}{
		{"int", 0, 0},
		{"string", "3", 3},
		{"integral float", float64(5), 5},
		{"integral json number", json.Number("2.0"), 2},
		{"exponent json number", json.Number("3e0"), 3},
		{"maximum", MaxScale, MaxScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(map[string]any{
				"reference": map[string]any{"vec": "1"},
				"scale":     tt.scale,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Scale())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing reference", map[string]any{"scale": 2}},
		{"nil params", nil},
		{"reference not a map", map[string]any{"reference": "1,2,3"}},
		{"empty reference", map[string]any{"reference": map[string]any{}}},
		{"both reference and input", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"input":     map[string]any{"vec": "1"},
		}},
		{"non-integer token", map[string]any{"reference": map[string]any{"vec": "1,x,3"}}},
		{"decimal token", map[string]any{"reference": map[string]any{"vec": "1.5,2"}}},
		{"empty value", map[string]any{"reference": map[string]any{"vec": ""}}},
		{"only separators", map[string]any{"reference": map[string]any{"vec": ",,,"}}},
		{"null value", map[string]any{"reference": map[string]any{"vec": nil}}},
		{"empty separator", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"separator": "",
		}},
		{"unknown distance type", map[string]any{
			"reference":     map[string]any{"vec": "1"},
			"distance_type": "manhattan",
		}},
		{"distance type wrong case", map[string]any{
			"reference":     map[string]any{"vec": "1"},
			"distance_type": "Cosine",
		}},
		{"negative scale", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     -1,
		}},
		{"non-numeric scale", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     "two",
		}},
		{"fractional scale", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     2.5,
		}},
		{"fractional json number scale", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     json.Number("2.5"),
		}},
		{"scale above maximum", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     MaxScale + 1,
		}},
		{"huge scale", map[string]any{
			"reference": map[string]any{"vec": "1"},
			"scale":     json.Number("20000000"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, p)
			assert.Equal(t, "invalid_config", Code(err))
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("euclidean")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, k)

	k, err = ParseKind("cosine")
	require.NoError(t, err)
	assert.Equal(t, Cosine, k)

	_, err = ParseKind("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, "euclidean", Euclidean.String())
	assert.Equal(t, "cosine", Cosine.String())
	assert.Equal(t, "unknown(7)", Kind(7).String())
}

func TestParams_FieldsReturnsCopy(t *testing.T) {
	p, err := Parse(map[string]any{"reference": map[string]any{"vec": "1,2"}})
	require.NoError(t, err)

	fields := p.Fields()
	fields[0].Values[0] = 99

	assert.Equal(t, int64(1), p.Fields()[0].Values[0])
}
