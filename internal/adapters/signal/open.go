package signal

import (
	"context"

	"github.com/dkeye/peerlink/internal/config"
	"github.com/dkeye/peerlink/internal/core"
	"github.com/dkeye/peerlink/internal/domain"
)

// Open establishes the transport selected by cfg. acceptor is required for websocket listen mode.
func Open(ctx context.Context, cfg config.SignalingConfig, acceptor *Acceptor) (core.Transport, error) {
	var (
		t   core.Transport
		err error
	)
	switch {
	case cfg.Transport == config.TransportPipe && cfg.Listen:
		t, err = asTransport(ListenPipe(ctx, cfg.Pipe, cfg.WriteTimeout))
	case cfg.Transport == config.TransportPipe:
		t, err = asTransport(DialPipe(ctx, cfg.Pipe, cfg.WriteTimeout))
	case cfg.Transport == config.TransportWebSocket && cfg.Listen:
		if acceptor == nil {
			return nil, domain.NewError(domain.CodeConfig, "websocket listen mode without http endpoint")
		}
		t, err = asTransport(acceptor.Accept(ctx))
	case cfg.Transport == config.TransportWebSocket:
		t, err = asTransport(DialWebSocket(ctx, cfg.URL, cfg.WriteTimeout))
	default:
		return nil, domain.NewError(domain.CodeConfig, "unknown signaling transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, domain.WrapError(domain.CodeChannelClosed, err, "open signaling transport")
	}
	return t, nil
}

func asTransport[T core.Transport](t T, err error) (core.Transport, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
