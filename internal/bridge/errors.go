package bridge

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations that need an open port.
var ErrNotConnected = errors.New("serial port not connected")

// ConnectionError reports a port that could not be opened.
type ConnectionError struct {
	Port string
	Baud int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error opening serial port %s at %d baud: %v", e.Port, e.Baud, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports a fault on an established connection. The session
// is torn down when one occurs.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError marks a chunk that is not plain ASCII. It is logged and the
// chunk still goes to the decoder.
type DecodeError struct {
	Len    int
	Offset int
	Byte   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("chunk of %d bytes is not ascii: 0x%02X at offset %d", e.Len, e.Byte, e.Offset)
}

// asciiText returns p as a string when every byte is 7-bit ASCII.
func asciiText(p []byte) (string, error) {
	for i, b := range p {
		if b > 0x7f {
			return "", &DecodeError{Len: len(p), Offset: i, Byte: b}
		}
	}
	return string(p), nil
}
