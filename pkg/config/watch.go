package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// Watch calls onChange with the re-read configuration every time the file at path
// is written or created, until ctx is done. The parent directory
// is watched so that editors and ConfigMap updates replacing the file are noticed.
// A configuration that fails to read is logged and skipped.
func Watch(ctx context.Context, fs afero.Fs, path string, onChange func(*StaticConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating configuration watcher")
	}
	path = filepath.Clean(path)
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, "watching %s", filepath.Dir(path))
	}
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Read(fs, path)
				if err != nil {
					klog.Errorf("keeping previous configuration: %v", err)
					continue
				}
				klog.V(1).Infof("configuration %s reloaded", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				klog.Errorf("configuration watcher: %v", err)
			}
		}
	}()
	return nil
}
