package service

import (
	"errors"
	"net"
)

var errAcceptFailed = errors.New("accept: listener broken")

// failingListener fails every Accept, as a listener whose socket died does.
type failingListener struct{}

func (failingListener) Accept() (net.Conn, error) { return nil, errAcceptFailed }
func (failingListener) Close() error { return nil }
func (failingListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}
