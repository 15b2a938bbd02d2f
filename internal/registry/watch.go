package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"rice/internal/logging"
)

// Watcher hot-reloads descriptor JSON files from a directory into a
// Registry. Each file <id>.json holds one marshaled Descriptor; writing,
// renaming, or removing a file is treated as an explicit register or
// unregister call on behalf of whatever external process manages that
// directory.
type Watcher struct {
	reg     *Registry
	dir     string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchDir loads every *.json descriptor already present in dir, then
// starts watching for further changes. Call Close to stop watching.
func WatchDir(reg *Registry, dir string) (*Watcher, error) {
	if err := loadDir(reg, dir); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{reg: reg, dir: dir, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func loadDir(reg *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := loadFile(reg, filepath.Join(dir, entry.Name())); err != nil {
			logging.Get(logging.CategoryRegistry).Warn("skipping malformed descriptor %s: %v", entry.Name(), err)
		}
	}
	return nil
}

func loadFile(reg *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	return reg.Register(&d)
}

func (w *Watcher) loop() {
	log := logging.Get(logging.CategoryRegistry)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := loadFile(w.reg, event.Name); err != nil {
					log.Warn("failed to reload descriptor %s: %v", event.Name, err)
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.reg.Unregister(id)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("descriptor watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
