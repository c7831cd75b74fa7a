package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
)

// Store holds the in-memory view of auth_dir. The directory is the source
// of truth; the store reloads on filesystem events so credentials dropped
// in by other tools become usable without a restart.
type Store struct {
	dir string

	mu    sync.RWMutex
	creds map[string]*Credential
}

// NewStore builds a store over dir and performs the initial scan.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir, creds: map[string]*Credential{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the credential directory.
func (s *Store) Dir() string { return s.dir }

// Reload rescans the directory.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		entries = nil
	} else if err != nil {
		return err
	}

	creds := map[string]*Credential{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		c, err := LoadFile(path)
		if err != nil {
			logging.Warnf("skipping credential %s: %v", entry.Name(), err)
			continue
		}
		creds[path] = c
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

// Save persists the credential and updates the in-memory view.
func (s *Store) Save(c *Credential) error {
	if err := Save(s.dir, c); err != nil {
		return err
	}
	s.mu.Lock()
	s.creds[c.Path] = c
	s.mu.Unlock()
	return nil
}

// List returns usable credentials for the provider.
func (s *Store) List(p registry.Provider) []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.creds {
		if c.Provider == p && c.Usable() {
			out = append(out, c)
		}
	}
	return out
}

// Providers returns the set of providers with at least one usable
// credential.
func (s *Store) Providers() map[registry.Provider]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[registry.Provider]bool{}
	for _, c := range s.creds {
		if c.Usable() {
			out[c.Provider] = true
		}
	}
	return out
}

// Watch reloads the store on directory changes until ctx is cancelled.
// Events are debounced; a burst of writes triggers one rescan.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if strings.HasPrefix(filepath.Base(ev.Name), ".cred-") {
					continue
				}
				pending = time.After(200 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("credential watcher: %v", err)
			case <-pending:
				pending = nil
				if err := s.Reload(); err != nil {
					logging.Warnf("credential reload: %v", err)
				} else {
					logging.Debugf("credentials reloaded from %s", s.dir)
				}
			}
		}
	}()
	return nil
}
