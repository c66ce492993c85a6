package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	require.Equal(t, "10.1.2.3", ClientIP(req))

	req.RemoteAddr = "[::ffff:192.0.2.7]:80"
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req.RemoteAddr = "pipe"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "pipe", ClientIP(req))
	require.Empty(t, ClientIP(nil))
}
