package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch publishes modify events for files written under the root until ctx
// is done. Directories created while watching are added to the watch.
func (v *Vault) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := v.addTree(watcher, v.root); err != nil {
		return err
	}

	v.logger.Info("vault: watching", "root", v.root)
	for {
		select {
		case <-ctx.Done():
			v.logger.Info("vault: watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			v.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("vault: watch error", "error", err)
		}
	}
}

func (v *Vault) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := v.addTree(watcher, event.Name); err != nil {
				v.logger.Warn("vault: watching new directory failed", "path", event.Name, "error", err)
			}
		}
		return
	}

	v.NotifyModified(event.Name)
}

func (v *Vault) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != v.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}
