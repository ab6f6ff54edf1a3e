package server

import (
	"fmt"
	"net"
	"strconv"
)

// Listen opens addr, falling back to the next port when addr is taken.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}

	host, portStr, splitErr := net.SplitHostPort(addr)
	if splitErr != nil {
		return nil, err
	}
	port, convErr := strconv.Atoi(portStr)
	if convErr != nil || port == 0 {
		return nil, err
	}

	fallback := net.JoinHostPort(host, strconv.Itoa(port+1))
	ln, fbErr := net.Listen("tcp", fallback)
	if fbErr != nil {
		return nil, fmt.Errorf("listen %s: %w (fallback %s: %v)", addr, err, fallback, fbErr)
	}
	return ln, nil
}
