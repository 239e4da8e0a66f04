// Package mail is the application-side client of the mail backend service.
package mail
