package signal

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const maxMessageSize = 1 << 20

// StreamTransport frames messages as newline-delimited JSON over a byte stream.
type StreamTransport struct {
	conn         io.ReadWriteCloser
	r            *bufio.Reader
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func NewStreamTransport(conn io.ReadWriteCloser, writeTimeout time.Duration) *StreamTransport {
	return &StreamTransport{
		conn:         conn,
		r:            bufio.NewReaderSize(conn, 64<<10),
		writeTimeout: writeTimeout,
	}
}

func (t *StreamTransport) ReadMessage() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := t.r.ReadLine()
		if err != nil {
			if len(buf) > 0 && errors.Is(err, io.EOF) {
				return buf, nil
			}
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxMessageSize {
			return nil, ErrMalformedMessage
		}
		if isPrefix {
			continue
		}
		if line := bytes.TrimSpace(buf); len(line) > 0 {
			return line, nil
		}
		buf = buf[:0]
	}
}

func (t *StreamTransport) WriteMessage(data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return ErrMalformedMessage
	}
	if nc, ok := t.conn.(net.Conn); ok && t.writeTimeout > 0 {
		if err := nc.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')
	_, err := t.conn.Write(frame)
	return err
}

func (t *StreamTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
