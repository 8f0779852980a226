package instagram

import (
	"net"
	"net/http"

	"github.com/jfk9w/gramrelay/internal/feed"

	"github.com/jfk9w-go/flu/httpf"
	"github.com/jfk9w-go/flu/syncf"
	"github.com/pkg/errors"
)

// classifyUpstreamError decides whether an API error is worth
// retrying with the same cursor or should suspend the subscription.
func classifyUpstreamError(err error) error {
	var (
		statusErr httpf.StatusCodeError
		netErr    net.Error
	)

	switch {
	case err == nil:
		return nil
	case syncf.IsContextRelated(err):
		return err
	case errors.As(err, &statusErr):
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return feed.ErrNotFound
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= 500:
			return feed.Unavailable(err)
		default:
			return err
		}
	case errors.As(err, &netErr):
		return feed.Unavailable(err)
	default:
		return err
	}
}
