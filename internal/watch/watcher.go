// Package watch は配信ディレクトリ内のファイル変更を監視します。
// github.com/fsnotify/fsnotify を使い、サブディレクトリも再帰的に監視します。
// エディタは1回の保存で複数のイベントを出すため、パスごとに間引きます。
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// 監視しないディレクトリ
var ignoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// 変更通知しないファイル名・拡張子
var ignoreSuffixes = []string{
	".DS_Store",
	".swp",
	".swx",
	"~",
	".tmp",
}

// debounceInterval 以内の同一パスのイベントは無視する
const debounceInterval = 50 * time.Millisecond

// 記録がこの件数に達したら古いものを捨てる
const pruneThreshold = 64

// debouncer はパスごとに直近のイベント時刻を記録する
type debouncer struct {
	interval time.Duration
	last     map[string]time.Time
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval, last: make(map[string]time.Time)}
}

// allow は path のイベントを通知すべきかを返す
func (d *debouncer) allow(path string, now time.Time) bool {
	if t, seen := d.last[path]; seen && now.Sub(t) < d.interval {
		return false
	}
	if len(d.last) >= pruneThreshold {
		d.prune(now)
	}
	d.last[path] = now
	return true
}

// prune は interval より古い記録を削除する
func (d *debouncer) prune(now time.Time) {
	for path, t := range d.last {
		if now.Sub(t) >= d.interval {
			delete(d.last, path)
		}
	}
}

// Watcher はディレクトリを再帰的に監視する
type Watcher struct {
	root    string
	fw      *fsnotify.Watcher
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// New は新しい Watcher を作成する
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:   fw,
		done: make(chan struct{}),
	}, nil
}

// Watch は root 以下の監視を開始する
// onChange には変更されたファイルの絶対パスが渡される
func (w *Watcher) Watch(root string, onChange func(path string)) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.root = absRoot

	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // アクセスできないパスは飛ばす
		}
		if !d.IsDir() {
			return nil
		}
		if ignoreDirs[d.Name()] && path != absRoot {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop(onChange)
	return nil
}

func (w *Watcher) loop(onChange func(path string)) {
	debounce := newDebouncer(debounceInterval)

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			path := event.Name

			// 新しいディレクトリも監視対象に加える
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() && !ignoreDirs[info.Name()] {
					_ = w.fw.Add(path)
				}
			}

			if shouldIgnore(w.root, path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			if !debounce.allow(path, time.Now()) {
				continue
			}

			onChange(path)

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}

		case <-w.done:
			return
		}
	}
}

// Stop は監視を終了する。複数回呼んでもよい
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	return w.fw.Close()
}

// shouldIgnore はパスが通知対象外かを返す
// ディレクトリ名の判定は root からの相対パスに対してのみ行う
func shouldIgnore(root, path string) bool {
	base := filepath.Base(path)
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignoreDirs[part] {
			return true
		}
	}
	return false
}
