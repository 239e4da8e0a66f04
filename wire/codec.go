package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var errWireType = errors.New("unexpected wire type")

// DecodeError describes malformed input to one of the decoders.
type DecodeError struct {
	// Message is the name of the message being decoded, such as "PutResponse".
	Message string
	// Field is the name of the field being decoded, if the problem is specific to one field.
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s: %s", e.Message, e.Err)
	}
	return fmt.Sprintf("malformed %s.%s: %s", e.Message, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(message, field string, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Message: message, Field: field, Err: fmt.Errorf(format, args...)}
}

type encoder struct {
	b []byte
}

func (e *encoder) string(num protowire.Number, s string) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, s)
}

// strings writes every element, including empty ones, so that repeated fields keep their length.
func (e *encoder) strings(num protowire.Number, ss []string) {
	for _, s := range ss {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, s)
	}
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) int64(num protowire.Number, v int64) {
	e.uint64(num, uint64(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint64(num, 1)
	}
}

func (e *encoder) double(num protowire.Number, v float64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed64Type)
	e.b = protowire.AppendFixed64(e.b, math.Float64bits(v))
}

// message always writes the field, even when the nested message is empty, so that presence is
// preserved for optional messages and repeated elements.
func (e *encoder) message(num protowire.Number, fn func(*encoder)) {
	var inner encoder
	fn(&inner)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, inner.b)
}

// field is one decoded field. Only the member matching typ is meaningful.
type field struct {
	message string
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed64 uint64
	data    []byte
}

// eachField walks the top-level fields of an encoded message.
func eachField(message string, b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{Message: message, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		f := field{message: message, num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return &DecodeError{Message: message, Field: fmt.Sprintf("#%d", num), Err: protowire.ParseError(n)}
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(name string, typ protowire.Type) error {
	if f.typ != typ {
		return &DecodeError{Message: f.message, Field: name, Err: errWireType}
	}
	return nil
}

func (f field) asString(name string) (string, error) {
	if err := f.expect(name, protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.data), nil
}

// asBytes copies the data so that decoded messages never alias the input buffer.
func (f field) asBytes(name string) ([]byte, error) {
	if err := f.expect(name, protowire.BytesType); err != nil {
		return nil, err
	}
	return append([]byte{}, f.data...), nil
}

func (f field) asUint64(name string) (uint64, error) {
	if err := f.expect(name, protowire.VarintType); err != nil {
		return 0, err
	}
	return f.varint, nil
}

func (f field) asInt64(name string) (int64, error) {
	v, err := f.asUint64(name)
	return int64(v), err
}

func (f field) asBool(name string) (bool, error) {
	v, err := f.asUint64(name)
	return protowire.DecodeBool(v), err
}

func (f field) asDouble(name string) (float64, error) {
	if err := f.expect(name, protowire.Fixed64Type); err != nil {
		return 0, err
	}
	return math.Float64frombits(f.fixed64), nil
}

func (f field) asMessage(name string) ([]byte, error) {
	if err := f.expect(name, protowire.BytesType); err != nil {
		return nil, err
	}
	return f.data, nil
}

// Header is a name/value pair used by mail, task queue and URL fetch messages.
type Header struct {
	Name  string
	Value string
}

func encodeHeaders(e *encoder, num protowire.Number, headers []Header) {
	for _, h := range headers {
		h := h
		e.message(num, func(e *encoder) {
			e.string(1, h.Name)
			e.string(2, h.Value)
		})
	}
}

func decodeHeader(message string, f field) (Header, error) {
	data, err := f.asMessage("header")
	if err != nil {
		return Header{}, err
	}
	var h Header
	err = eachField(message+".header", data, func(f field) (err error) {
		switch f.num {
		case 1:
			h.Name, err = f.asString("name")
		case 2:
			h.Value, err = f.asString("value")
		}
		return err
	})
	return h, err
}
