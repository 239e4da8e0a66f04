package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Property is a named value of an entity. Value is nil, string, int64, float64, bool or []byte.
type Property struct {
	Name  string
	Value interface{}
}

// Entity is a stored record: a key plus its properties, in order.
type Entity struct {
	Key        Key
	Properties []Property
}

// Property returns the value of the first property with the given name.
func (e Entity) Property(name string) (interface{}, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Set returns a copy of the entity with the named property replaced or appended.
func (e Entity) Set(name string, value interface{}) Entity {
	props := make([]Property, 0, len(e.Properties)+1)
	replaced := false
	for _, p := range e.Properties {
		if p.Name == name {
			p.Value = value
			replaced = true
		}
		props = append(props, p)
	}
	if !replaced {
		props = append(props, Property{Name: name, Value: value})
	}
	e.Properties = props
	return e
}

func encodeEntity(e *encoder, ent Entity) {
	e.message(1, func(e *encoder) { encodeKey(e, ent.Key) })
	for _, p := range ent.Properties {
		p := p
		e.message(2, func(e *encoder) { encodeProperty(e, p) })
	}
}

// Property values are written even when they are zero, so that 0, "" and false survive a round
// trip and are distinguishable from a missing value.
func encodeProperty(e *encoder, p Property) {
	e.string(1, p.Name)
	switch v := p.Value.(type) {
	case string:
		e.b = protowire.AppendTag(e.b, 2, protowire.BytesType)
		e.b = protowire.AppendString(e.b, v)
	case int64:
		e.b = protowire.AppendTag(e.b, 3, protowire.VarintType)
		e.b = protowire.AppendVarint(e.b, uint64(v))
	case int:
		e.b = protowire.AppendTag(e.b, 3, protowire.VarintType)
		e.b = protowire.AppendVarint(e.b, uint64(int64(v)))
	case float64:
		e.b = protowire.AppendTag(e.b, 4, protowire.Fixed64Type)
		e.b = protowire.AppendFixed64(e.b, math.Float64bits(v))
	case bool:
		e.b = protowire.AppendTag(e.b, 5, protowire.VarintType)
		e.b = protowire.AppendVarint(e.b, protowire.EncodeBool(v))
	case []byte:
		e.b = protowire.AppendTag(e.b, 6, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, v)
	case nil:
	default:
		// Anything else is stored in its printed form rather than being lost.
		e.b = protowire.AppendTag(e.b, 2, protowire.BytesType)
		e.b = protowire.AppendString(e.b, fmt.Sprint(v))
	}
}

// EncodeEntity encodes a single entity.
func EncodeEntity(ent Entity) []byte {
	var e encoder
	encodeEntity(&e, ent)
	return e.b
}

// DecodeEntity decodes a single entity. The entity must have a key.
func DecodeEntity(data []byte) (Entity, error) {
	var ent Entity
	hasKey := false
	err := eachField("Entity", data, func(f field) (err error) {
		switch f.num {
		case 1:
			ent.Key, err = decodeKeyField("key", f)
			hasKey = true
		case 2:
			var p Property
			p, err = decodeProperty(f)
			ent.Properties = append(ent.Properties, p)
		}
		return err
	})
	if err != nil {
		return Entity{}, err
	}
	if !hasKey {
		return Entity{}, decodeError("Entity", "key", "entity has no key")
	}
	return ent, nil
}

func decodeEntityField(name string, f field) (Entity, error) {
	data, err := f.asMessage(name)
	if err != nil {
		return Entity{}, err
	}
	return DecodeEntity(data)
}

func decodeProperty(f field) (Property, error) {
	data, err := f.asMessage("property")
	if err != nil {
		return Property{}, err
	}
	var p Property
	err = eachField("Entity.property", data, func(f field) (err error) {
		switch f.num {
		case 1:
			p.Name, err = f.asString("name")
		case 2:
			p.Value, err = f.asString("string_value")
		case 3:
			p.Value, err = f.asInt64("int_value")
		case 4:
			p.Value, err = f.asDouble("double_value")
		case 5:
			p.Value, err = f.asBool("bool_value")
		case 6:
			p.Value, err = f.asBytes("bytes_value")
		}
		return err
	})
	return p, err
}
