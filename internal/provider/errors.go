package provider

import "errors"

var (
	ErrIo            = errors.New("i/o error")
	ErrOutOfBounds   = errors.New("address out of bounds")
	ErrUnreadable    = errors.New("provider is not readable")
	ErrUnwritable    = errors.New("provider is not writable")
	ErrUnresizable   = errors.New("provider is not resizable")
	ErrUnsavable     = errors.New("provider is not savable")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNotOpen       = errors.New("provider is not open")
	ErrUnknownType   = errors.New("unknown provider type")
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// ioError wraps a failure from the underlying source so that it matches both ErrIo and the cause.
type ioError struct {
	op  string
	err error
}

func (e *ioError) Error() string {
	return e.op + ": " + ErrIo.Error() + ": " + e.err.Error()
}

func (e *ioError) Unwrap() []error {
	return []error{ErrIo, e.err}
}

func wrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ioError{op: op, err: err}
}
