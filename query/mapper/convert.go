package mapper

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// ErrTypeConversion is returned when a column value cannot be coerced into
// the target field.
var ErrTypeConversion = errors.New("type conversion failure")

// ConversionError names the property, column and types of a failed
// conversion.
type ConversionError struct {
	Property string
	Column   string
	From     reflect.Type
	To       reflect.Type
	Err      error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert column %s (%v) to %s (%v)", e.Column, e.From, e.Property, e.To)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrTypeConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrTypeConversion
}

// Unwrap returns the underlying parse error, if any.
func (e *ConversionError) Unwrap() error { return e.Err }

var (
	scannerType  = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	geometryType = reflect.TypeOf((*orb.Geometry)(nil)).Elem()
	timeType     = reflect.TypeOf(time.Time{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bytesType    = reflect.TypeOf([]byte(nil))
	anyType      = reflect.TypeOf((*any)(nil)).Elem()
)

// converter stores src into dst.
type converter func(src any, dst reflect.Value) error

var errNoRule = errors.New("no conversion rule")

// rule selects the conversion from src to dst. A nil src defers the choice
// to each value's dynamic type.
func rule(src, dst reflect.Type) (converter, error) {
	if src == nil {
		return dynamic, nil
	}
	switch {
	case src.AssignableTo(dst):
		return assign, nil
	case dst == uuidType && (src == bytesType || src.Kind() == reflect.String):
		return toUUID, nil
	case reflect.PointerTo(dst).Implements(scannerType):
		return scan, nil
	case dst.Kind() == reflect.Ptr:
		inner, err := rule(src, dst.Elem())
		if err != nil {
			return nil, err
		}
		return wrap(inner), nil
	case dst == geometryType || dst.Implements(geometryType):
		if src == bytesType || src.Kind() == reflect.String {
			return toGeometry, nil
		}
	case dst == timeType:
		if src == bytesType || src.Kind() == reflect.String {
			return toTime, nil
		}
	case isNumeric(src.Kind()) && isNumeric(dst.Kind()):
		return numeric, nil
	case dst.Kind() == reflect.Bool && isNumeric(src.Kind()):
		return toBool, nil
	case dst.Kind() == reflect.String && src == bytesType:
		return func(v any, d reflect.Value) error { d.SetString(string(v.([]byte))); return nil }, nil
	case dst == bytesType && src.Kind() == reflect.String:
		return func(v any, d reflect.Value) error { d.SetBytes([]byte(reflect.ValueOf(v).String())); return nil }, nil
	case isNumeric(dst.Kind()) && (src == bytesType || src.Kind() == reflect.String):
		return parseNumber, nil
	case src.ConvertibleTo(dst) && src.Kind() == dst.Kind():
		return convertible, nil
	}
	return nil, errNoRule
}

// typed guards a rule chosen for the declared column type: values of any
// other dynamic type fall back to per-value selection.
func typed(src reflect.Type, conv converter) converter {
	return func(v any, dst reflect.Value) error {
		if reflect.TypeOf(v) != src {
			return dynamic(v, dst)
		}
		return conv(v, dst)
	}
}

func dynamic(v any, dst reflect.Value) error {
	conv, err := rule(reflect.TypeOf(v), dst.Type())
	if err != nil {
		return err
	}
	return conv(v, dst)
}

func assign(v any, dst reflect.Value) error {
	dst.Set(reflect.ValueOf(v))
	return nil
}

func convertible(v any, dst reflect.Value) error {
	dst.Set(reflect.ValueOf(v).Convert(dst.Type()))
	return nil
}

func scan(v any, dst reflect.Value) error {
	return dst.Addr().Interface().(sql.Scanner).Scan(v)
}

// wrap stores into a freshly allocated pointee.
func wrap(inner converter) converter {
	return func(v any, dst reflect.Value) error {
		elem := reflect.New(dst.Type().Elem())
		if err := inner(v, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
}

func toUUID(v any, dst reflect.Value) error {
	var (
		id  uuid.UUID
		err error
	)
	switch x := v.(type) {
	case []byte:
		if len(x) == 16 {
			id, err = uuid.FromBytes(x)
		} else {
			id, err = uuid.ParseBytes(x)
		}
	default:
		id, err = uuid.Parse(reflect.ValueOf(v).String())
	}
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(id))
	return nil
}

func toGeometry(v any, dst reflect.Value) error {
	var data []byte
	switch x := v.(type) {
	case []byte:
		data = x
	default:
		data = []byte(reflect.ValueOf(v).String())
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return err
	}
	gv := reflect.ValueOf(geom)
	if !gv.Type().AssignableTo(dst.Type()) {
		return fmt.Errorf("geometry is %s", geom.GeoJSONType())
	}
	dst.Set(gv)
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(v any, dst reflect.Value) error {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	default:
		s = reflect.ValueOf(v).String()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}

func toBool(v any, dst reflect.Value) error {
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		dst.SetBool(rv.Int() != 0)
	case rv.CanUint():
		dst.SetBool(rv.Uint() != 0)
	default:
		dst.SetBool(rv.Float() != 0)
	}
	return nil
}

// numeric converts between numeric kinds, rejecting values the target
// cannot hold.
func numeric(v any, dst reflect.Value) error {
	src := reflect.ValueOf(v)
	switch {
	case dst.CanInt():
		var n int64
		switch {
		case src.CanInt():
			n = src.Int()
		case src.CanUint():
			u := src.Uint()
			if u > math.MaxInt64 {
				return fmt.Errorf("value %d overflows %s", u, dst.Type())
			}
			n = int64(u)
		default:
			f := src.Float()
			if f != math.Trunc(f) {
				return fmt.Errorf("value %v is not integral", f)
			}
			if f < math.MinInt64 || f >= -math.MinInt64 {
				return fmt.Errorf("value %v overflows %s", f, dst.Type())
			}
			n = int64(f)
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case dst.CanUint():
		var u uint64
		switch {
		case src.CanInt():
			if src.Int() < 0 {
				return fmt.Errorf("value %d overflows %s", src.Int(), dst.Type())
			}
			u = uint64(src.Int())
		case src.CanUint():
			u = src.Uint()
		default:
			f := src.Float()
			if f < 0 || f >= 1<<64 || f != math.Trunc(f) {
				return fmt.Errorf("value %v overflows %s", f, dst.Type())
			}
			u = uint64(f)
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %s", u, dst.Type())
		}
		dst.SetUint(u)
	default:
		var f float64
		switch {
		case src.CanInt():
			f = float64(src.Int())
		case src.CanUint():
			f = float64(src.Uint())
		default:
			f = src.Float()
		}
		dst.SetFloat(f)
	}
	return nil
}

// parseNumber reads numbers that text protocols deliver as strings.
func parseNumber(v any, dst reflect.Value) error {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	default:
		s = reflect.ValueOf(v).String()
	}
	switch {
	case dst.CanInt():
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		return numeric(n, dst)
	case dst.CanUint():
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		return numeric(n, dst)
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		return numeric(f, dst)
	}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
