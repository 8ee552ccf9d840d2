package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Concrete is a fully resolved value: no deferred references left, ready to
// serialize. Objects keep their declared field order, which is why this is
// not a plain map.
type Concrete interface {
	concreteValue()
}

type Str string
type Int int64
type Float float64
type Bool bool
type Null struct{}

// Field is one resolved object field.
type Field struct {
	Name  string
	Value Concrete
}

// Object is an ordered list of resolved fields.
type Object []Field

// Array is an ordered list of resolved items.
type Array []Concrete

func (Str) concreteValue()    {}
func (Int) concreteValue()    {}
func (Float) concreteValue()  {}
func (Bool) concreteValue()   {}
func (Null) concreteValue()   {}
func (Object) concreteValue() {}
func (Array) concreteValue()  {}

// Marshal serializes a concrete value as JSON, emitting object fields in
// declared order.
func Marshal(c Concrete) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, c Concrete) error {
	switch v := c.(type) {
	case Str:
		return encodeScalar(buf, string(v))
	case Int:
		return encodeScalar(buf, int64(v))
	case Float:
		return encodeScalar(buf, float64(v))
	case Bool:
		return encodeScalar(buf, bool(v))
	case Null:
		buf.WriteString("null")
		return nil
	case Object:
		buf.WriteByte('{')
		for i, f := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeScalar(buf, f.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	return fmt.Errorf("unsupported concrete value %T", c)
}

func encodeScalar(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
