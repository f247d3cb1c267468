package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Conn is one side of a worker channel: newline-delimited JSON messages over
// a duplex pair of pipes. Sends are safe for concurrent use.
type Conn struct {
	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder
}

// NewConn wraps the read and write halves of a channel
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		enc: json.NewEncoder(w),
		dec: json.NewDecoder(r),
	}
}

// Send writes one message. Params may be nil.
func (c *Conn) Send(method string, params any) error {
	msg := Message{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		msg.Params = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}
	return nil
}

// Recv reads the next message, blocking until one arrives. Returns io.EOF
// when the peer closes its end.
func (c *Conn) Recv() (Message, error) {
	var msg Message
	if err := c.dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
