package signal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

func retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Debug().Str("module", "signal").Str("target", what).Err(err).Dur("wait", wait).Msg("dial failed, retrying")
	})
}
