package poller

import (
	"time"

	"github.com/jfk9w-go/flu/backoff"
)

// NewBackoff returns an exponential backoff with a ceiling.
func NewBackoff(base, max time.Duration) backoff.Interface {
	return capped{
		Exp: backoff.Exp{Base: base, Factor: 2},
		Max: max,
	}
}

type capped struct {
	backoff.Exp
	Max time.Duration
}

func (b capped) Timeout(retry int) time.Duration {
	timeout := b.Exp.Timeout(retry)
	if b.Max > 0 && timeout > b.Max {
		return b.Max
	}

	return timeout
}
