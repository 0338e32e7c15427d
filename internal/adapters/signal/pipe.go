package signal

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// PipePath maps a pipe name to the local socket path. Absolute paths are used as is.
func PipePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(os.TempDir(), name+".sock")
}

// ListenPipe creates the named pipe and waits for exactly one peer to connect.
func ListenPipe(ctx context.Context, name string, writeTimeout time.Duration) (*StreamTransport, error) {
	path := PipePath(name)
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("pipe path %s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale pipe: %w", err)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen pipe %s: %w", path, err)
	}
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	log.Info().Str("module", "signal").Str("pipe", path).Msg("waiting for peer")
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept pipe %s: %w", path, err)
	}
	log.Info().Str("module", "signal").Str("pipe", path).Msg("peer connected")
	return NewStreamTransport(conn, writeTimeout), nil
}

// DialPipe connects to a pipe created by ListenPipe, retrying until the listener appears or ctx is done.
func DialPipe(ctx context.Context, name string, writeTimeout time.Duration) (*StreamTransport, error) {
	path := PipePath(name)
	var d net.Dialer
	var conn net.Conn
	err := retry(ctx, "pipe", func() error {
		c, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial pipe %s: %w", path, err)
	}
	log.Info().Str("module", "signal").Str("pipe", path).Msg("connected to peer")
	return NewStreamTransport(conn, writeTimeout), nil
}
