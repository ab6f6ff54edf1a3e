package server

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_FallsBackToNextPort(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port
	ln, err := Listen(taken.Addr().String())
	if err != nil {
		t.Skipf("next port unavailable: %v", err)
	}
	defer ln.Close()

	assert.Equal(t, strconv.Itoa(port+1), portOf(t, ln))
}

func TestListen_FreeAddress(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEqual(t, "0", portOf(t, ln))
}

func TestListen_BadAddress(t *testing.T) {
	_, err := Listen("not an address")
	assert.Error(t, err)
}

func portOf(t *testing.T, ln net.Listener) string {
	t.Helper()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port
}
