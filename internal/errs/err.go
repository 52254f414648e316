// Package errs collects independent failures that should be reported together.
package errs

import "strings"

type Errors []error

func New() Errors {
	return Errors([]error{})
}

func (e Errors) Error() string {
	if e == nil {
		return ""
	}

	s := []string{}
	for _, err := range e {
		s = append(s, err.Error())
	}
	return strings.Join(s, "\n")
}

// Add appends err. Nil errors are ignored.
func (e *Errors) Add(err error) {
	if err == nil {
		return
	}
	*e = append(*e, err)
}

// Unwrap lets errors.Is and errors.As look through every collected error.
func (e Errors) Unwrap() []error {
	return e
}

func (e Errors) NilIfEmpty() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
