// Package taskqueue is the application-side client of the task queue backend service.
package taskqueue
