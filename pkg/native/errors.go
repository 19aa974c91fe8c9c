package native

import (
	"errors"
	"fmt"
)

// InvalidArgumentError reports a parameter that failed its shape, type or
// non-emptiness check. It is always raised synchronously, before anything is
// forwarded to the native layer.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Reason)
}

// IsInvalidArgument reports whether err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
