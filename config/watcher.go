package config

import (
	"path/filepath"

	"Bt1QLink/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听节点列表文件，文件变更时重新解析并回调
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching the nodes file. onReload is invoked with the
// newly parsed node list every time the file content changes and parses
// cleanly; parse failures keep the previous list in effect.
func NewWatcher(path string, onReload func([]NodeConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监听目录而不是文件本身，编辑器原子替换时 inode 会变
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		done:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case event := <-fw.Events:
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				nodes, err := LoadNodesFile(path)
				if err != nil {
					logger.Warn("nodes file reload failed",
						logger.ErrorField(err),
						logger.String("path", path))
					continue
				}
				logger.Info("nodes file reloaded",
					logger.String("path", path),
					logger.Int("nodes", len(nodes)))
				onReload(nodes)
			case err := <-fw.Errors:
				logger.Warn("nodes file watcher error", logger.ErrorField(err))
			case <-w.done:
				return
			}
		}
	}()

	return w, nil
}

// Close 停止监听
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
