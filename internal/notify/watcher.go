// Package notify watches the connector manifest file and hot-reloads the
// active connector set when it changes, so trust weights and latency
// budgets can be tuned without a restart.
package notify

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/scrypster/scopedb/internal/config"
)

// ManifestWatcher watches a connector manifest file and dispatches the
// reloaded manifest to a callback. Editors typically fire several write
// events per save, so reloads are debounced.
type ManifestWatcher struct {
	path     string
	callback func(*config.Manifest) error
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
	done     chan struct{}
}

// NewManifestWatcher creates a watcher for the manifest at path. callback
// is invoked with each successfully loaded and validated manifest.
func NewManifestWatcher(path string, logger *zap.Logger, callback func(*config.Manifest) error) *ManifestWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestWatcher{
		path:     path,
		callback: callback,
		debounce: 250 * time.Millisecond,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself: editors that rename-over the file would otherwise detach the
// watch. Call Stop() to clean up.
func (mw *ManifestWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(mw.path)); err != nil {
		_ = w.Close()
		return err
	}
	mw.watcher = w

	go mw.loop()
	mw.log.Info("watching connector manifest", zap.String("path", mw.path))
	return nil
}

// Stop shuts down the watcher.
func (mw *ManifestWatcher) Stop() {
	if mw.watcher != nil {
		_ = mw.watcher.Close()
	}
	<-mw.done
}

func (mw *ManifestWatcher) loop() {
	defer close(mw.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case evt, ok := <-mw.watcher.Events:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(mw.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(mw.debounce)
				timerC = timer.C
			} else {
				timer.Reset(mw.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			mw.reload()

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			mw.log.Warn("manifest watcher error", zap.Error(err))
		}
	}
}

// reload parses and applies the manifest. A malformed manifest is logged
// and skipped; the previously applied connector set stays active.
func (mw *ManifestWatcher) reload() {
	manifest, err := config.LoadManifest(mw.path)
	if err != nil {
		mw.log.Error("manifest reload failed, keeping previous connector set",
			zap.String("path", mw.path), zap.Error(err))
		return
	}
	if err := mw.callback(manifest); err != nil {
		mw.log.Error("manifest apply failed, keeping previous connector set",
			zap.String("path", mw.path), zap.Error(err))
		return
	}
	mw.log.Info("connector manifest reloaded",
		zap.String("path", mw.path),
		zap.Int("connectors", len(manifest.Connectors)))
}
