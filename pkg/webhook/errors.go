package webhook

import "errors"

var (
	// ErrMalformedPayload is returned by normalizers when a body cannot be
	// decoded into a canonical event. The event is dropped and logged; the
	// handler still acknowledges the delivery.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNotConfigured is returned when a handler is built without its
	// required collaborators.
	ErrNotConfigured = errors.New("webhook handler not configured")
)
