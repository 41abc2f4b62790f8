package omc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// ZMQTransport is a ZeroMQ REQ socket connected to a compiler started with
// --interactive=zmq.
type ZMQTransport struct {
	endpoint string
	sock     zmq4.Socket
}

// DialZMQ connects a REQ socket to endpoint (for example tcp://127.0.0.1:5555).
// A failed dial is reported as ErrTransient.
func DialZMQ(endpoint string) (*ZMQTransport, error) {
	// The socket outlives any single request, so it is not bound to a
	// caller's context.
	sock := zmq4.NewReq(context.Background())
	if err := sock.Dial(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransient, endpoint, err)
	}
	return &ZMQTransport{endpoint: endpoint, sock: sock}, nil
}

// Endpoint returns the address the socket is connected to.
func (t *ZMQTransport) Endpoint() string {
	return t.endpoint
}

// Send writes expr and blocks for the reply.
func (t *ZMQTransport) Send(expr string) (string, error) {
	if err := t.sock.Send(zmq4.NewMsgString(expr)); err != nil {
		return "", fmt.Errorf("zmq send: %w", err)
	}
	msg, err := t.sock.Recv()
	if err != nil {
		return "", fmt.Errorf("zmq recv: %w", err)
	}
	return string(bytes.Join(msg.Frames, nil)), nil
}

// SendNoWait writes expr and returns without reading the reply.
func (t *ZMQTransport) SendNoWait(expr string) error {
	if err := t.sock.Send(zmq4.NewMsgString(expr)); err != nil {
		return fmt.Errorf("zmq send: %w", err)
	}
	return nil
}

// Close closes the socket. A pending Send returns an error.
func (t *ZMQTransport) Close() error {
	return t.sock.Close()
}
