// Package localapi runs backend services in process.
//
// A Proxy owns one Service per backend service name and implements apiproxy.Delegate by routing
// each call to the service's method table. Services are built by Factory implementations from
// manifests found under the library directory (see LoadManifest), which is how the provision
// package assembles a local backend without any reflection.
package localapi
