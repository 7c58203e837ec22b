package transport

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"
)

// maxLine bounds a single framed message.
const maxLine = 4 << 20

// StreamLink frames messages as newline-terminated lines over a stream
// connection.
type StreamLink struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewStreamLink wraps conn.  The link owns conn from here on.
func NewStreamLink(conn net.Conn) *StreamLink {
	return &StreamLink{conn: conn, reader: bufio.NewReaderSize(conn, 64<<10)}
}

// Receive returns the next line without its terminator.  A final
// unterminated line is delivered before io.EOF.
func (l *StreamLink) Receive() ([]byte, error) {
	var line []byte
	for {
		chunk, err := l.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			if len(line) > maxLine {
				return nil, bufio.ErrTooLong
			}
			continue
		}
		if err == io.EOF && len(line) > 0 {
			return trimEOL(line), nil
		}
		if err != nil {
			return nil, err
		}
		return trimEOL(line), nil
	}
}

// Send writes msg followed by a newline.
func (l *StreamLink) Send(msg []byte) error {
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err := l.conn.Write(buf)
	return err
}

// CloseSend shuts down the write side when the connection supports it
// (TCP, SSH channels).
func (l *StreamLink) CloseSend() error {
	cw, ok := l.conn.(interface{ CloseWrite() error })
	if !ok {
		return ErrNoHalfClose
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return cw.CloseWrite()
}

// Close closes the connection.
func (l *StreamLink) Close() error { return l.conn.Close() }

// RemoteAddr returns the peer address.
func (l *StreamLink) RemoteAddr() string {
	if a := l.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
