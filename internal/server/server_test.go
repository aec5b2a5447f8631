package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int) string { return strconv.Itoa(n) }

// startAsync はサーバーを別ゴルーチンで起動し、リッスン状態になるまで待つ
func startAsync(t *testing.T, ctx context.Context, srv *Server) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return srv.State() == StateListening
	}, 3*time.Second, 10*time.Millisecond, "サーバーが起動しませんでした")
	return errCh
}

func waitStopped(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		require.NoError(t, err, "サーバーの起動/停止でエラーが発生しました")
	case <-time.After(5 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	out := &syncBuffer{}
	cfg := testConfig(newSite(t))
	cfg.Browser.Open = true

	var (
		mu     sync.Mutex
		opened []string
	)
	srv := New(cfg, WithOutput(out), WithOpener(OpenerFunc(func(url string) error {
		mu.Lock()
		defer mu.Unlock()
		opened = append(opened, url)
		return nil
	})))
	assert.Equal(t, StateIdle, srv.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startAsync(t, ctx, srv)

	port := srv.Port()
	require.NotZero(t, port)

	resp, err := http.Get(srv.URL() + "/dashboard/x/y")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, entryBody, string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	// コンテキストをキャンセルしてサーバーを停止
	cancel()
	waitStopped(t, errCh)
	assert.Equal(t, StateStopped, srv.State())

	// 停止後は同じポートにすぐバインドできる
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(port)))
	require.NoError(t, err)
	ln.Close()

	mu.Lock()
	assert.Equal(t, []string{"http://127.0.0.1:" + itoa(port)}, opened)
	mu.Unlock()

	console := out.String()
	assert.Contains(t, console, cfg.Static.Root)
	assert.Contains(t, console, srv.URL())
	assert.Contains(t, console, `"GET /dashboard/x/y HTTP/1.1" 200`)
	assert.Contains(t, console, "サーバーを正常に停止しました")
}

// TestServerPortInUse は2つ目のインスタンスの挙動をテストする
func TestServerPortInUse(t *testing.T) {
	root := newSite(t)
	_, port := occupy(t)

	t.Run("代替ポートなし", func(t *testing.T) {
		cfg := testConfig(root)
		cfg.Server.Port = port
		cfg.Server.PortFallback = false

		srv := newTestServer(t, cfg, nil)
		err := srv.Start(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPortInUse))
		assert.Equal(t, StateStopped, srv.State())
	})

	t.Run("代替ポートあり", func(t *testing.T) {
		cfg := testConfig(root)
		cfg.Server.Port = port
		cfg.Server.PortFallback = true

		srv := newTestServer(t, cfg, nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(ctx) }()

		require.Eventually(t, func() bool {
			st := srv.State()
			return st == StateListening || st == StateStopped
		}, 3*time.Second, 10*time.Millisecond)

		if srv.State() == StateStopped {
			err := <-errCh
			if errors.Is(err, ErrPortInUse) {
				t.Skipf("代替ポート %d も使用中です", port+1)
			}
			t.Fatalf("予期しないエラー: %v", err)
		}

		assert.Equal(t, port+1, srv.Port())
		cancel()
		waitStopped(t, errCh)
	})
}

func TestBindTwice(t *testing.T) {
	srv := newTestServer(t, testConfig(newSite(t)), nil)

	_, err := srv.Bind()
	require.NoError(t, err)
	defer srv.Shutdown()

	_, err = srv.Bind()
	assert.Error(t, err)
}

func TestServeWithoutBind(t *testing.T) {
	srv := newTestServer(t, testConfig(newSite(t)), nil)
	assert.Error(t, srv.Serve(context.Background()))
}

// TestShutdownIdempotent は Shutdown を複数回呼べることをテストする
func TestShutdownIdempotent(t *testing.T) {
	srv := newTestServer(t, testConfig(newSite(t)), nil)

	port, err := srv.Bind()
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
	assert.Equal(t, StateStopped, srv.State())

	// リスニングソケットは解放されている
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", itoa(port)))
	require.NoError(t, err)
	ln.Close()
}

func TestOpenerFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(newSite(t))
	cfg.Browser.Open = true
	srv := New(cfg, WithOutput(io.Discard), WithOpener(OpenerFunc(func(string) error {
		return errors.New("no browser")
	})))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := startAsync(t, ctx, srv)
	cancel()
	waitStopped(t, errCh)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "State(42)", State(42).String())
}
