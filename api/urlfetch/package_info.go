// Package urlfetch is the application-side client of the URL fetch backend service.
package urlfetch
