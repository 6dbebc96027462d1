package notification

import (
	"errors"
	"fmt"
)

var ErrRejected = errors.New("notification backend reported failure")

// NotificationError is a notification that could not be delivered. It never
// affects the order it describes.
type NotificationError struct {
	Kind    Kind
	OrderID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%s for order %s: %v", e.Kind, e.OrderID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("notification backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}
