// Package apiproxy defines the call-shaped contract between application code and the backend
// services it uses, and the store that holds the environment and delegate that are current for
// a test scope.
//
// Application code never talks to a backend directly. It encodes a request, calls MakeSyncCall or
// MakeAsyncCall with a service and method name, and the Delegate that is currently installed in the
// Store decides what happens to the call. In production that delegate forwards to the real
// backend; under test it is replaced by a dispatcher that can virtualize, swallow or observe calls.
package apiproxy
