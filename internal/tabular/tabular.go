// Package tabular turns rows of mixed numeric and categorical values into a
// numeric matrix suitable for clustering.
package tabular

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/justestif/go-fitness-pattern-finder/internal/clustering"
)

// ErrValidation is returned for rows that cannot be encoded.
var ErrValidation = errors.New("invalid rows")

// Kind is the encoding chosen for a column.
type Kind int

const (
	// Numeric columns keep their value.
	Numeric Kind = iota
	// Categorical columns are replaced by integer codes.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Table is an encoded dataset.
type Table struct {
	Columns []string
	Kinds   []Kind
	Matrix  [][]float64

	// Substitutions maps a categorical column index to the code assigned to
	// each distinct value, keyed by its fmt.Sprint form. Codes follow first
	// appearance.
	Substitutions map[int]map[string]int
}

// EncodeMaps encodes rows keyed by column name. Every row must have the same
// keys; columns are ordered by key.
func EncodeMaps(rows []map[string]any) (*Table, error) {
	if len(rows) == 0 {
		return encode(nil, nil)
	}

	columns := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		columns = append(columns, k)
	}
	slices.Sort(columns)

	values := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d keys, want %d", ErrValidation, i, len(row), len(columns))
		}
		values[i] = make([]any, len(columns))
		for j, c := range columns {
			v, ok := row[c]
			if !ok {
				return nil, fmt.Errorf("%w: row %d is missing key %q", ErrValidation, i, c)
			}
			values[i][j] = v
		}
	}
	return encode(columns, values)
}

// EncodeRows encodes positional rows. Every row must have the same length;
// columns are named by position.
func EncodeRows(rows [][]any) (*Table, error) {
	if len(rows) == 0 {
		return encode(nil, nil)
	}

	width := len(rows[0])
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrValidation, i, len(row), width)
		}
	}
	columns := make([]string, width)
	for j := range columns {
		columns[j] = strconv.Itoa(j)
	}
	return encode(columns, rows)
}

func encode(columns []string, rows [][]any) (*Table, error) {
	t := &Table{
		Columns:       columns,
		Kinds:         make([]Kind, len(columns)),
		Matrix:        make([][]float64, len(rows)),
		Substitutions: make(map[int]map[string]int),
	}
	if t.Columns == nil {
		t.Columns = []string{}
	}
	if len(rows) == 0 {
		return t, nil
	}

	// The first row fixes each column's kind.
	for j, v := range rows[0] {
		k, err := kindOf(v)
		if err != nil {
			return nil, fmt.Errorf("row 0 column %q: %w", columns[j], err)
		}
		t.Kinds[j] = k
		if k == Categorical {
			t.Substitutions[j] = make(map[string]int)
		}
	}

	for i, row := range rows {
		t.Matrix[i] = make([]float64, len(row))
		for j, v := range row {
			k, err := kindOf(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, columns[j], err)
			}
			if k != t.Kinds[j] {
				return nil, fmt.Errorf("%w: row %d column %q is %s, want %s", ErrValidation, i, columns[j], k, t.Kinds[j])
			}
			if k == Numeric {
				t.Matrix[i][j] = toFloat(v)
				continue
			}
			codes := t.Substitutions[j]
			key := fmt.Sprint(v)
			code, ok := codes[key]
			if !ok {
				code = len(codes)
				codes[key] = code
			}
			t.Matrix[i][j] = float64(code)
		}
	}
	return t, nil
}

func kindOf(v any) (Kind, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: nil value", ErrValidation)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Numeric, nil
	case reflect.String, reflect.Bool:
		return Categorical, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value of type %T", ErrValidation, v)
	}
}

func toFloat(v any) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	default:
		return rv.Float()
	}
}

// Points returns the matrix rows as clustering points.
func (t *Table) Points() []clustering.Point {
	points := make([]clustering.Point, len(t.Matrix))
	for i, row := range t.Matrix {
		points[i] = clustering.Point(slices.Clone(row))
	}
	return points
}

// Normalized returns a copy of the table with every column min-max scaled
// to [0,1]. Constant columns become 0.
func (t *Table) Normalized() *Table {
	out := &Table{
		Columns:       slices.Clone(t.Columns),
		Kinds:         slices.Clone(t.Kinds),
		Matrix:        make([][]float64, len(t.Matrix)),
		Substitutions: t.Substitutions,
	}
	for i, row := range t.Matrix {
		out.Matrix[i] = make([]float64, len(row))
	}
	if len(t.Matrix) == 0 {
		return out
	}

	for j := range t.Matrix[0] {
		lo, hi := t.Matrix[0][j], t.Matrix[0][j]
		for _, row := range t.Matrix[1:] {
			lo = min(lo, row[j])
			hi = max(hi, row[j])
		}
		if hi == lo {
			continue
		}
		for i, row := range t.Matrix {
			out.Matrix[i][j] = (row[j] - lo) / (hi - lo)
		}
	}
	return out
}
