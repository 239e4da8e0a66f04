// Package provision decides which backend the harness talks to and, when that is the local one,
// builds it.
//
// A running backend at Config.RemoteURL is preferred. Otherwise every required service must have
// a manifest under <LibDir>/impl, and the local services are constructed from those manifests
// exactly once per Provisioner. Whatever happens the first time, success or failure, is what
// every later caller sees.
package provision
