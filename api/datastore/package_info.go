// Package datastore is the application-side client of the datastore backend service.
//
// Every function encodes its request with package wire and calls through the delegate that is
// current for the context (see apiproxy.StoreFrom), so the same code talks to a real backend, to
// the local backends, or to a test harness in between.
package datastore
