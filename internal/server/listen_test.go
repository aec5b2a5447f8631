package server

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupy はループバックの空きポートを確保して返す
func occupy(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestListenEphemeral(t *testing.T) {
	ln, port, err := Listen("127.0.0.1", 0, true)
	require.NoError(t, err)
	defer ln.Close()

	assert.NotZero(t, port)
	assert.Equal(t, port, ln.Addr().(*net.TCPAddr).Port)
}

// TestListenPortInUseStrict は代替ポートなしでポート使用中エラーになることをテストする
func TestListenPortInUseStrict(t *testing.T) {
	_, port := occupy(t)

	ln, _, err := Listen("127.0.0.1", port, false)
	require.Error(t, err)
	assert.Nil(t, ln)
	assert.True(t, errors.Is(err, ErrPortInUse), "err = %v", err)
}

// TestListenFallback は使用中の場合に port+1 でバインドすることをテストする
func TestListenFallback(t *testing.T) {
	_, port := occupy(t)

	ln, got, err := Listen("127.0.0.1", port, true)
	if errors.Is(err, ErrPortInUse) {
		t.Skipf("代替ポート %d も使用中です", port+1)
	}
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, port+1, got)
}

// TestListenFallbackOnlyOnce は再試行が一度だけであることをテストする
func TestListenFallbackOnlyOnce(t *testing.T) {
	_, port := occupy(t)
	alt, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(port+1)))
	if err != nil {
		t.Skipf("代替ポート %d を確保できません: %v", port+1, err)
	}
	defer alt.Close()

	_, _, err = Listen("127.0.0.1", port, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortInUse))
}

func TestListenOtherError(t *testing.T) {
	_, _, err := Listen("127.0.0.1", -1, true)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPortInUse))
}

func TestIsAddrInUse(t *testing.T) {
	_, port := occupy(t)
	_, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(port)))
	require.Error(t, err)
	assert.True(t, isAddrInUse(err))

	assert.False(t, isAddrInUse(errors.New("connection refused")))
}
