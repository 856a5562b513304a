package language

import (
	"time"

	"github.com/spf13/cast"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// NativeToObject converts a go value, as a database/sql driver would hand it
// over, into its object representation
func NativeToObject(val interface{}) Object {
	switch v := val.(type) {
	case nil:
		return NULL
	case Object:
		return v
	case bool:
		return nativeBoolToBooleanObject(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return &Integer{Value: cast.ToInt64(v)}
	case uint64:
		return newUnsigned(v)
	case float32, float64:
		return &Float{Value: cast.ToFloat64(v)}
	case string:
		return &String{Value: v}
	case []byte:
		return &String{Value: string(v)}
	case time.Time:
		return &String{Value: v.Format(dateTimeLayout)}
	case []interface{}:
		l := &List{}
		for _, e := range v {
			l.Value = append(l.Value, NativeToObject(e))
		}

		return l
	}

	return &String{Value: cast.ToString(val)}
}

// RowFromMap builds a row from a go map using the given column order. Columns
// missing from the order are appended in no particular order.
func RowFromMap(values map[string]interface{}, order ...string) *Row {
	r := NewRow()

	for _, c := range order {
		if v, ok := values[c]; ok {
			r.Set(c, NativeToObject(v))
		}
	}

	for k, v := range values {
		if _, ok := r.Get(k); !ok {
			r.Set(k, NativeToObject(v))
		}
	}

	return r
}
