package client_test

import (
	"testing"
	"time"

	"github.com/nkyo/gocached/cache"
	"github.com/nkyo/gocached/client"
	"github.com/nkyo/gocached/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	c := cache.New(cache.Unbounded(), cache.WithDisableDiagnostic(), cache.WithDisableLogger())
	s := server.New(c, server.WithPort(0), server.WithDisableDiagnostic())
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		_ = s.Stop()
		c.Close()
	})
	return s.Addr().String()
}

func newTestClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	cl, err := client.New(addr, client.WithDisableDiagnostic(), client.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(cl.End)
	return cl
}

func TestClient_SetGetDelete(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	require.NoError(t, cl.Set("foo", []byte("hello"), 0))

	v, flags, err := cl.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
	assert.Equal(t, uint32(0), flags)

	require.NoError(t, cl.Delete("foo"))

	_, _, err = cl.Get("foo")
	assert.ErrorIs(t, err, client.ErrCacheMiss)
}

func TestClient_AddReplace(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	assert.ErrorIs(t, cl.Replace("bar", []byte("x"), 0), client.ErrNotStored)
	require.NoError(t, cl.Add("bar", []byte("x"), 0))
	assert.ErrorIs(t, cl.Add("bar", []byte("y"), 0), client.ErrNotStored)
	require.NoError(t, cl.Replace("bar", []byte("y"), 0))
}

func TestClient_IncrDecr(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	require.NoError(t, cl.Set("n", []byte("10"), 0))

	n, err := cl.Incr("n", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), n)

	n, err = cl.Decr("n", 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestClient_Touch(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	assert.ErrorIs(t, cl.Touch("k", 10), client.ErrNotFound)
	require.NoError(t, cl.Set("k", []byte("z"), 0))
	require.NoError(t, cl.Touch("k", 10))
}

func TestClient_VersionAndStats(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	v, err := cl.Version()
	require.NoError(t, err)
	assert.Contains(t, v, "gocached")

	require.NoError(t, cl.Set("k", []byte("v"), 0))
	stats, err := cl.Stats()
	require.NoError(t, err)
	assert.Equal(t, "1", stats["curr_items"])
}

func TestClient_ItemRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)

	require.NoError(t, cl.SetItem("obj", map[string]any{"a": "b"}, 0))
	v, err := cl.GetItem("obj")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "b"}, v)

	require.NoError(t, cl.SetItem("str", "plain", 0))
	v, err = cl.GetItem("str")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestClient_Endpoints(t *testing.T) {
	addr := startTestServer(t)
	cl := newTestClient(t, addr)
	assert.Len(t, cl.Endpoints(), 1)
}

func TestClient_NoServers(t *testing.T) {
	_, err := client.New([]string{})
	assert.ErrorIs(t, err, client.ErrNoServers)
}
