package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"proxyrules/internal/constants"
	"proxyrules/internal/debuglog"
)

// DefaultDebounce is how long Watch waits after the last change before it
// regenerates.
const DefaultDebounce = 500 * time.Millisecond

// watchSet is what one settings value makes Watch listen to. Single files
// are watched through their parent directory so editors that save by rename
// are still seen.
type watchSet struct {
	files map[string]bool // absolute file paths
	dirs  map[string]bool // absolute directories whose every file counts
}

func newWatchSet(settingsFile string, s Settings) watchSet {
	ws := watchSet{files: make(map[string]bool), dirs: make(map[string]bool)}
	addFile := func(p string) {
		if p != "" {
			ws.files[absPath(p)] = true
		}
	}
	addDir := func(p string) {
		if p != "" {
			ws.dirs[absPath(p)] = true
		}
	}
	addFile(settingsFile)
	addFile(s.NodesFile)
	addDir(s.RulesDir)
	if s.BaseDir != "" {
		addDir(s.BaseDir)
		addDir(filepath.Join(s.BaseDir, constants.HeadDirName))
	}
	return ws
}

// watchDirs returns every directory that has to be registered with fsnotify.
func (ws watchSet) watchDirs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for f := range ws.files {
		add(filepath.Dir(f))
	}
	for d := range ws.dirs {
		add(d)
	}
	return out
}

func (ws watchSet) relevant(name string) bool {
	abs := absPath(name)
	if ws.files[abs] {
		return true
	}
	if strings.HasPrefix(filepath.Base(abs), ".") {
		return false
	}
	return ws.dirs[filepath.Dir(abs)]
}

// Watch runs the generator once, then again whenever the settings file, the
// node list, the base directory or the rule directory changes. Bursts of
// changes are collapsed into one run after debounce; zero means
// DefaultDebounce. onRun receives the outcome of every run, failures
// included. Watch returns nil when ctx is cancelled.
func (g *Generator) Watch(ctx context.Context, debounce time.Duration, onRun func(*Report, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer debuglog.CloseWithLog("Watch", watcher)

	ws := newWatchSet(g.source, g.settings)
	registered := make(map[string]bool)
	register := func(ws watchSet) {
		want := make(map[string]bool)
		for _, dir := range ws.watchDirs() {
			want[dir] = true
			if registered[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				generatorLog(debuglog.LevelWarn, "cannot watch %s: %v", dir, err)
				continue
			}
			registered[dir] = true
			generatorLog(debuglog.LevelVerbose, "watching %s", dir)
		}
		for dir := range registered {
			if !want[dir] {
				_ = watcher.Remove(dir)
				delete(registered, dir)
			}
		}
	}
	register(ws)

	run := func() {
		report, err := g.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			generatorLog(debuglog.LevelError, "generation failed: %v", err)
		}
		onRun(report, err)
	}
	run()

	settingsPath := ""
	if g.source != "" {
		settingsPath = absPath(g.source)
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	settingsChanged := false

	for {
		select {
		case <-ctx.Done():
			generatorLog(debuglog.LevelInfo, "watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 || !ws.relevant(event.Name) {
				continue
			}
			generatorLog(debuglog.LevelTrace, "change: %s %s", event.Op, event.Name)
			if settingsPath != "" && absPath(event.Name) == settingsPath {
				settingsChanged = true
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			generatorLog(debuglog.LevelWarn, "watcher error: %v", err)

		case <-timer.C:
			if settingsChanged {
				settingsChanged = false
				if err := g.reload(); err != nil {
					generatorLog(debuglog.LevelError, "settings reload failed: %v", err)
					onRun(nil, err)
					continue
				}
				ws = newWatchSet(g.source, g.settings)
				register(ws)
			}
			run()
		}
	}
}

// reload rereads the settings file, keeping the current settings on failure.
func (g *Generator) reload() error {
	s, err := loadWithOverrides(g.source, g.overrides)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	g.settings = s
	generatorLog(debuglog.LevelInfo, "settings reloaded from %s", g.source)
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
