package helpers

import (
	"fmt"
	"io"
)

// MustFprintln is fmt.Fprintln for writers that are not expected to fail, such as a terminal.
func MustFprintln(w io.Writer, a ...any) {
	if _, err := fmt.Fprintln(w, a...); err != nil {
		panic(err)
	}
}

// MustFprintf is fmt.Fprintf for writers that are not expected to fail, such as a terminal.
func MustFprintf(w io.Writer, format string, a ...any) {
	if _, err := fmt.Fprintf(w, format, a...); err != nil {
		panic(err)
	}
}
