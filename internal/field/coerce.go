package field

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a native datasource value into a Value of type t.
// Slices become lists for list types; for single-valued types only the first
// element is kept.
func Coerce(native any, t Type) (Value, error) {
	if native == nil {
		return Null(), nil
	}
	if v, ok := native.(Value); ok {
		return v, nil
	}

	elems, isSlice := sliceOf(native)
	if t.IsList() {
		if !isSlice {
			elems = []any{native}
		}
		out := make([]Value, 0, len(elems))
		for _, e := range elems {
			v, err := Coerce(e, t.Elem())
			if err != nil {
				return Null(), err
			}
			if !v.IsNull() {
				out = append(out, v)
			}
		}
		return List(out), nil
	}
	if isSlice {
		if len(elems) == 0 {
			return Null(), nil
		}
		return Coerce(elems[0], t)
	}

	return coerceScalar(native, t)
}

func sliceOf(native any) ([]any, bool) {
	switch x := native.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(native)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func coerceScalar(native any, t Type) (Value, error) {
	switch t {
	case Text, String, URI:
		s := FormatScalar(native)
		if b, ok := native.([]byte); ok {
			s = string(b)
		}
		return Scalar(s), nil
	case Tokens:
		s := FormatScalar(native)
		if s == "" {
			return TokenList(nil), nil
		}
		return TokenList([]Token{NewToken(s)}), nil
	case Integer:
		n, err := toInt(native)
		if err != nil {
			return Null(), err
		}
		return Scalar(n), nil
	case Decimal:
		f, err := toFloat(native)
		if err != nil {
			return Null(), err
		}
		return Scalar(f), nil
	case Boolean:
		b, err := toBool(native)
		if err != nil {
			return Null(), err
		}
		return Scalar(b), nil
	case Date:
		d, err := toTime(native)
		if err != nil {
			return Null(), err
		}
		return Scalar(d), nil
	case Duration:
		d, err := toDuration(native)
		if err != nil {
			return Null(), err
		}
		return Scalar(d), nil
	}
	return Null(), fmt.Errorf("cannot coerce to unknown type %q", t)
}

func toInt(native any) (int64, error) {
	switch x := native.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt(uint64(x))
	case uint64:
		return uintToInt(x)
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return x.Unix(), nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0, fmt.Errorf("cannot convert %v (%T) to integer", native, native)
}

func uintToInt(x uint64) (int64, error) {
	if x > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d overflows int64", x)
	}
	return int64(x), nil
}

// floatToInt truncates f. Values outside the int64 range are an error.
func floatToInt(f float64) (int64, error) {
	f = math.Trunc(f)
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("number %v overflows int64", f)
	}
	return int64(f), nil
}

func toFloat(native any) (float64, error) {
	switch x := native.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to decimal", x)
		}
		return f, nil
	}
	n, err := toInt(native)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %v (%T) to decimal", native, native)
	}
	return float64(n), nil
}

func toBool(native any) (bool, error) {
	switch x := native.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "no", "off":
			return false, nil
		case "1", "true", "yes", "on":
			return true, nil
		}
		return false, fmt.Errorf("cannot convert %q to boolean", x)
	}
	n, err := toFloat(native)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func toTime(native any) (time.Time, error) {
	switch x := native.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.UTC(), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("cannot convert %q to date", x)
	}
	n, err := toInt(native)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot convert %v (%T) to date", native, native)
	}
	return time.Unix(n, 0).UTC(), nil
}

func toDuration(native any) (time.Duration, error) {
	switch x := native.(type) {
	case time.Duration:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return 0, fmt.Errorf("cannot convert %q to duration", x)
	}
	n, err := toInt(native)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %v (%T) to duration", native, native)
	}
	return time.Duration(n) * time.Second, nil
}
