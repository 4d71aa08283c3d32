package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	seedAuthorsFile = "authors.json"
	seedTrackerFile = "tracker.json"
)

// AuthorRecord and TrackerRow are open JSON objects keyed by the compact
// field codes the dataset uses (e=email, n=name, ph=phone, pl=package,
// pk=packageKey, dt=paymentDate, c=consultant, st=status, rm=remark, plus
// the stage flags ie/ar/fu/my/fg/am/pp/ce). Keeping them as raw objects
// preserves field-presence semantics for patch merging.
type AuthorRecord map[string]json.RawMessage

type TrackerRow map[string]json.RawMessage

// Seed is the immutable dataset the runtime overrides are layered onto.
type Seed struct {
	Authors []AuthorRecord
	Tracker map[string]TrackerRow
}

// LoadSeed reads authors.json and tracker.json from dir.
func LoadSeed(dir string) (Seed, error) {
	var seed Seed
	if err := loadJSONFile(filepath.Join(dir, seedAuthorsFile), &seed.Authors); err != nil {
		return Seed{}, err
	}
	if err := loadJSONFile(filepath.Join(dir, seedTrackerFile), &seed.Tracker); err != nil {
		return Seed{}, err
	}
	if seed.Tracker == nil {
		seed.Tracker = map[string]TrackerRow{}
	}
	return seed, nil
}

func loadJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("missing data file %s: %w", path, err)
		}
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid JSON in data file %s: %w", path, err)
	}
	return nil
}

type Logger interface {
	Printf(format string, args ...any)
}

// SeedProvider serves the current seed snapshot and can hot-reload it when
// the underlying files change.
type SeedProvider struct {
	dir    string
	logger Logger

	mu      sync.RWMutex
	seed    Seed
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewSeedProvider(dir string, logger Logger) (*SeedProvider, error) {
	seed, err := LoadSeed(dir)
	if err != nil {
		return nil, err
	}
	return &SeedProvider{dir: dir, logger: logger, seed: seed}, nil
}

func (p *SeedProvider) Seed() Seed {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seed
}

// Watch starts reloading the seed whenever authors.json or tracker.json is
// rewritten. Reload failures keep the previous snapshot.
func (p *SeedProvider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	p.watcher = watcher
	p.done = make(chan struct{})
	go p.watchLoop()
	return nil
}

func (p *SeedProvider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if name != seedAuthorsFile && name != seedTrackerFile {
				continue
			}
			seed, err := LoadSeed(p.dir)
			if err != nil {
				p.logf("seed reload skipped: %v", err)
				continue
			}
			p.mu.Lock()
			p.seed = seed
			p.mu.Unlock()
			p.logf("seed reloaded after change to %s", name)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logf("seed watcher error: %v", err)
		case <-p.done:
			return
		}
	}
}

func (p *SeedProvider) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

func (p *SeedProvider) Close() error {
	if p == nil {
		return nil
	}
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func recordString(rec map[string]json.RawMessage, key string) string {
	raw, ok := rec[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
