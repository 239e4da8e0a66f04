package apiproxy

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Environment describes the caller on whose behalf backend calls are made: which application is
// running, which user is signed in, and any request-scoped attributes. It is a value type; copies
// are independent, which is what lets a test restore the environment it found verbatim.
type Environment struct {
	AppID      string
	VersionID  string
	RequestID  string
	Email      string
	AuthDomain string
	Admin      bool
	LoggedIn   bool
	Attributes ldvalue.ValueMap
}

// IsZero returns true if no field of the environment has been set.
func (e Environment) IsZero() bool {
	return e.Equal(Environment{})
}

// Equal compares two environments by value.
func (e Environment) Equal(other Environment) bool {
	return e.AppID == other.AppID &&
		e.VersionID == other.VersionID &&
		e.RequestID == other.RequestID &&
		e.Email == other.Email &&
		e.AuthDomain == other.AuthDomain &&
		e.Admin == other.Admin &&
		e.LoggedIn == other.LoggedIn &&
		e.Attributes.Equal(other.Attributes)
}

// WithAttribute returns a copy of the environment with one attribute added or replaced.
func (e Environment) WithAttribute(name string, value ldvalue.Value) Environment {
	attrs := e.Attributes.AsMap()
	if attrs == nil {
		attrs = make(map[string]ldvalue.Value)
	}
	attrs[name] = value
	e.Attributes = ldvalue.CopyValueMap(attrs)
	return e
}

// Attribute returns the value of an attribute, or ldvalue.Null() if it is not set.
func (e Environment) Attribute(name string) ldvalue.Value {
	return e.Attributes.Get(name)
}

// Copy returns an independent copy of the environment. ldvalue.ValueMap is immutable, so a plain
// struct copy is already deep.
func (e Environment) Copy() Environment {
	return e
}
