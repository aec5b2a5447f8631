package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"syscall"
)

// ErrPortInUse はポートが既に使用中であることを示す
var ErrPortInUse = errors.New("ポートは既に使用中です")

// Listen は host:port でリッスンを開始し、実際のポート番号を返す
//
// ポートが使用中で fallback が true の場合は port+1 で一度だけ再試行する。
// それ以外のバインドエラーは再試行しない。port が 0 の場合は再試行しない。
func Listen(host string, port int, fallback bool) (net.Listener, int, error) {
	ln, err := listen(host, port)
	if err == nil {
		return ln, listenerPort(ln), nil
	}
	if !isAddrInUse(err) {
		return nil, 0, fmt.Errorf("ポート %d のバインドに失敗: %w", port, err)
	}
	if !fallback || port == 0 {
		return nil, 0, fmt.Errorf("%w: %d", ErrPortInUse, port)
	}

	alt := port + 1
	log.Printf("ポート %d は使用中です。代替ポート %d を試します", port, alt)

	ln, err = listen(host, alt)
	if err != nil {
		if isAddrInUse(err) {
			return nil, 0, fmt.Errorf("%w: %d, %d", ErrPortInUse, port, alt)
		}
		return nil, 0, fmt.Errorf("代替ポート %d のバインドに失敗: %w", alt, err)
	}
	return ln, listenerPort(ln), nil
}

func listen(host string, port int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// listenerPort はリスナーが実際にバインドしたポートを返す
func listenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// isAddrInUse はエラーがアドレス使用中によるものかを判定する
func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows は WSAEADDRINUSE を返すためメッセージでも判定する
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "only one usage of each socket address")
}
