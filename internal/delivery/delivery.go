// Package delivery pushes payloads to live client connections identified by
// an opaque connection handle.
package delivery

import (
	"context"
	"errors"
)

// ErrGone reports that the target connection no longer exists. It is an
// expected outcome, not a failure of the channel.
var ErrGone = errors.New("connection gone")

// Channel delivers one payload to one connection, at most once. Deliver returns
// nil once the payload was handed to the connection, ErrGone when the handle
// is unknown or closed, and any other error for transport faults. It does not
// retry.
type Channel interface {
	Deliver(ctx context.Context, handle string, payload []byte) error
}
