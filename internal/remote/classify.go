package remote

import (
	"errors"
	"fmt"
	"net/http"

	smithyhttp "github.com/aws/smithy-go/transport/http"

	"ticketkeeper/internal/common"
)

// classify maps a raw SDK error onto the engine's error taxonomy:
// 401/403 -> ErrNotAuthorized, 429 and 5xx -> ErrRemoteUnavailable (transient),
// remaining 4xx -> ErrRemoteRejected, anything without an HTTP response
// (DNS, connection refused, timeouts) -> ErrRemoteUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return fmt.Errorf("%w: %w", common.ErrNotAuthorized, err)
		case code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
		case code >= 400:
			return fmt.Errorf("%w: %w", common.ErrRemoteRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
}

// transient reports whether a classified error is worth retrying.
func transient(err error) bool {
	return errors.Is(err, common.ErrRemoteUnavailable)
}
