package era5

import (
	"fmt"
	"strconv"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

type number interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

func convert[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func convertPlane[T number](v [][][]T) ([][]float64, error) {
	if len(v) != 1 {
		return nil, fmt.Errorf("expected one time step, got %d", len(v))
	}
	out := make([][]float64, len(v[0]))
	for i, row := range v[0] {
		out[i] = convert(row)
	}
	return out, nil
}

// widen converts a float32 to the float64 with the same shortest decimal
// form, so that a stored 48.6f reads as 48.6 rather than 48.59999847.
func widen(f float32) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	return v
}

// toFloat64s converts a 1-D NetCDF value slice.
func toFloat64s(v any) ([]float64, error) {
	switch x := v.(type) {
	case []int8:
		return convert(x), nil
	case []uint8:
		return convert(x), nil
	case []int16:
		return convert(x), nil
	case []uint16:
		return convert(x), nil
	case []int32:
		return convert(x), nil
	case []uint32:
		return convert(x), nil
	case []int64:
		return convert(x), nil
	case []uint64:
		return convert(x), nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = widen(f)
		}
		return out, nil
	case []float64:
		return convert(x), nil
	default:
		return nil, fmt.Errorf("unsupported axis type %T", v)
	}
}

// firstPlane converts the [1][lat][lon] result of a one-step GetSlice.
func firstPlane(v any) ([][]float64, error) {
	switch x := v.(type) {
	case [][][]int8:
		return convertPlane(x)
	case [][][]uint8:
		return convertPlane(x)
	case [][][]int16:
		return convertPlane(x)
	case [][][]uint16:
		return convertPlane(x)
	case [][][]int32:
		return convertPlane(x)
	case [][][]uint32:
		return convertPlane(x)
	case [][][]int64:
		return convertPlane(x)
	case [][][]uint64:
		return convertPlane(x)
	case [][][]float32:
		return convertPlane(x)
	case [][][]float64:
		return convertPlane(x)
	default:
		return nil, fmt.Errorf("unsupported variable type %T", v)
	}
}

// attrFloat reads a numeric attribute stored either as a scalar or as a
// one-element slice.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	vals, err := toFloat64s(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
