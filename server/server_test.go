package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/nkyo/gocached/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, opts ...Option) (*Server, net.Addr) {
	t.Helper()
	c := cache.New(cache.Unbounded(), cache.WithDisableDiagnostic(), cache.WithDisableLogger())
	opts = append(opts, WithPort(0), WithDisableDiagnostic())
	s := New(c, opts...)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		_ = s.Stop()
		c.Close()
	})
	return s, s.Addr()
}

func dial(t *testing.T, addr net.Addr) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendAndRead(t *testing.T, conn net.Conn, r *bufio.Reader, cmd string, lines int) []string {
	t.Helper()
	_, err := conn.Write([]byte(cmd))
	require.NoError(t, err)

	out := make([]string, 0, lines)
	for i := 0; i < lines; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		out = append(out, line)
	}
	return out
}

func TestServer_SetGetDelete(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dial(t, addr)

	resp := sendAndRead(t, conn, r, "set foo 0 0 5\r\nhello\r\n", 1)
	assert.Equal(t, "STORED\r\n", resp[0])

	resp = sendAndRead(t, conn, r, "get foo\r\n", 3)
	assert.Equal(t, "VALUE foo 0 5\r\n", resp[0])
	assert.Equal(t, "hello\r\n", resp[1])
	assert.Equal(t, "END\r\n", resp[2])

	resp = sendAndRead(t, conn, r, "delete foo\r\n", 1)
	assert.Equal(t, "DELETED\r\n", resp[0])
}

func TestServer_Fast(t *testing.T) {
	_, addr := startTestServer(t, WithFast())
	conn, r := dial(t, addr)

	resp := sendAndRead(t, conn, r, "get anything\r\n", 1)
	assert.Equal(t, "ERROR\r\n", resp[0])
}

func TestServer_Quit(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dial(t, addr)

	_, err := conn.Write([]byte("quit\r\n"))
	require.NoError(t, err)

	_, err = r.ReadByte()
	assert.Error(t, err, "server should close the connection after quit")
}

func TestServer_EOT(t *testing.T) {
	_, addr := startTestServer(t)
	conn, r := dial(t, addr)

	_, err := conn.Write([]byte{0x04})
	require.NoError(t, err)

	_, err = r.ReadByte()
	assert.Error(t, err, "server should close the connection on EOT")
}
