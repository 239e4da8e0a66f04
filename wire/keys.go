package wire

import (
	"errors"
	"strconv"
	"strings"
)

// PathElement is one step of a Key path. An element with neither ID nor Name is incomplete; the
// datastore allocates an ID for it when the entity is put.
type PathElement struct {
	Kind string
	ID   int64
	Name string
}

// Incomplete returns true if the element has neither an ID nor a name.
func (p PathElement) Incomplete() bool {
	return p.ID == 0 && p.Name == ""
}

// Key identifies a stored entity.
type Key struct {
	AppID     string
	Namespace string
	Path      []PathElement
}

// NewKey creates a key whose last path element is (kind, name, id), under an optional parent.
// Pass a zero id and an empty name for an incomplete key.
func NewKey(appID, kind, name string, id int64, parent *Key) Key {
	k := Key{AppID: appID}
	if parent != nil {
		k.Namespace = parent.Namespace
		k.Path = append(k.Path, parent.Path...)
	}
	k.Path = append(k.Path, PathElement{Kind: kind, ID: id, Name: name})
	return k
}

// Kind returns the kind of the last path element.
func (k Key) Kind() string {
	if len(k.Path) == 0 {
		return ""
	}
	return k.Path[len(k.Path)-1].Kind
}

// Incomplete returns true if the last path element has no ID or name yet.
func (k Key) Incomplete() bool {
	return len(k.Path) == 0 || k.Path[len(k.Path)-1].Incomplete()
}

// Parent returns the key of the parent entity, if there is one.
func (k Key) Parent() (Key, bool) {
	if len(k.Path) < 2 {
		return Key{}, false
	}
	p := k
	p.Path = append([]PathElement(nil), k.Path[:len(k.Path)-1]...)
	return p, true
}

// WithID returns a copy of the key whose last element has the given ID.
func (k Key) WithID(id int64) Key {
	c := k
	c.Path = append([]PathElement(nil), k.Path...)
	if len(c.Path) > 0 {
		c.Path[len(c.Path)-1].ID = id
		c.Path[len(c.Path)-1].Name = ""
	}
	return c
}

// String returns the canonical form of the key. Two keys are the same key if and only if their
// canonical forms are equal.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.AppID))
	b.WriteByte('/')
	b.WriteString(strconv.Quote(k.Namespace))
	for _, p := range k.Path {
		b.WriteByte('/')
		b.WriteString(strconv.Quote(p.Kind))
		b.WriteByte(',')
		if p.Name != "" {
			b.WriteString(strconv.Quote(p.Name))
		} else {
			b.WriteString(strconv.FormatInt(p.ID, 10))
		}
	}
	return b.String()
}

// Equal compares two keys by their canonical form.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

func encodeKey(e *encoder, k Key) {
	e.string(1, k.AppID)
	e.string(2, k.Namespace)
	for _, p := range k.Path {
		p := p
		e.message(3, func(e *encoder) {
			e.string(1, p.Kind)
			e.int64(2, p.ID)
			e.string(3, p.Name)
		})
	}
}

// EncodeKey encodes a single key.
func EncodeKey(k Key) []byte {
	var e encoder
	encodeKey(&e, k)
	return e.b
}

// DecodeKey decodes a single key. A key must have at least one path element and every element
// must have a kind.
func DecodeKey(data []byte) (Key, error) {
	var k Key
	err := eachField("Key", data, func(f field) (err error) {
		switch f.num {
		case 1:
			k.AppID, err = f.asString("app")
		case 2:
			k.Namespace, err = f.asString("namespace")
		case 3:
			var p PathElement
			p, err = decodePathElement(f)
			k.Path = append(k.Path, p)
		}
		return err
	})
	if err != nil {
		return Key{}, err
	}
	if len(k.Path) == 0 {
		return Key{}, &DecodeError{Message: "Key", Field: "element", Err: errors.New("key has no path")}
	}
	return k, nil
}

func decodePathElement(f field) (PathElement, error) {
	data, err := f.asMessage("element")
	if err != nil {
		return PathElement{}, err
	}
	var p PathElement
	err = eachField("Key.element", data, func(f field) (err error) {
		switch f.num {
		case 1:
			p.Kind, err = f.asString("kind")
		case 2:
			p.ID, err = f.asInt64("id")
		case 3:
			p.Name, err = f.asString("name")
		}
		return err
	})
	if err == nil && p.Kind == "" {
		err = &DecodeError{Message: "Key.element", Field: "kind", Err: errors.New("path element has no kind")}
	}
	return p, err
}

func decodeKeyField(name string, f field) (Key, error) {
	data, err := f.asMessage(name)
	if err != nil {
		return Key{}, err
	}
	return DecodeKey(data)
}
