package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/amimof/huego"
)

// Error kinds for bridge calls. Callers classify with errors.Is.
var (
	ErrUnreachable     = errors.New("bridge unreachable")
	ErrTimeout         = errors.New("bridge request timed out")
	ErrNotFound        = errors.New("bulb not found")
	ErrRejected        = errors.New("bridge rejected request")
	ErrInvalidResponse = errors.New("invalid bridge response")
)

// classify wraps a raw transport error with its error kind so callers can
// branch on errors.Is without depending on huego or net internals.
func classify(op, bulb string, err error) error {
	if err == nil {
		return nil
	}

	kind := ErrUnreachable
	var netErr net.Error
	var apiErr *huego.APIError
	var jsonErr *json.SyntaxError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrTimeout
	case errors.As(err, &apiErr):
		kind = ErrRejected
	case errors.As(err, &jsonErr):
		kind = ErrInvalidResponse
	}

	return fmt.Errorf("%w: %s %q: %v", kind, op, bulb, err)
}
