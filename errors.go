package fluvii

import "fmt"

func Errorf(format string, v ...interface{}) error {
	return &Error{fmt.Errorf(format, v...)}
}

type Error struct {
	error
}

func (e *Error) Unwrap() error {
	return e.error
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.Error() + `"`), nil
}
