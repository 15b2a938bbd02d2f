package permission

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"rice/internal/logging"
)

// policyFile is the on-disk shape of a policy YAML document.
type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadPolicyFile reads rules from path and applies them to g.
func LoadPolicyFile(g *Gate, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.SetRules(nil)
			return nil
		}
		return fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	g.SetRules(pf.Rules)
	return nil
}

// PolicyWatcher hot-reloads a policy YAML file into a Gate on every
// write, mirroring the registry's directory watcher.
type PolicyWatcher struct {
	gate    *Gate
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchPolicyFile loads path into g and then watches it for further
// writes, reloading the full rule set on each change.
func WatchPolicyFile(g *Gate, path string) (*PolicyWatcher, error) {
	if err := LoadPolicyFile(g, path); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	w := &PolicyWatcher{gate: g, path: path, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *PolicyWatcher) loop() {
	log := logging.Get(logging.CategoryPermission)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := LoadPolicyFile(w.gate, w.path); err != nil {
					log.Warn("failed to reload policy %s: %v", w.path, err)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("policy watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *PolicyWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
