package server

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener は起動後にURLを開く機能
type Opener interface {
	Open(url string) error
}

// OpenerFunc は関数を Opener として扱うためのアダプタ
type OpenerFunc func(url string) error

// Open は f(url) を呼び出す
func (f OpenerFunc) Open(url string) error {
	return f(url)
}

// SystemOpener はOS標準のコマンドでブラウザを開く
type SystemOpener struct{}

// Open はブラウザの起動を開始し、終了を待たずに戻る
func (SystemOpener) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("未対応のプラットフォーム: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// ゾンビプロセスを残さない
	go cmd.Wait()
	return nil
}

// NopOpener は何もしない
type NopOpener struct{}

// Open は常に nil を返す
func (NopOpener) Open(string) error { return nil }
