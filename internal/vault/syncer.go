// Package vault keeps a local directory of documents consistent with the
// copy held by the notes application. Locally-observed changes are debounced
// and reported outbound; remotely-pushed changes are applied with echo
// suppression so the watcher never reports them back as local edits.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jamesshedden/clawcontrol-openclaw/internal/metrics"
	"github.com/jamesshedden/clawcontrol-openclaw/pkg/protocol"
)

const (
	// DefaultDebounceWindow collapses bursts of events per path.
	DefaultDebounceWindow = 300 * time.Millisecond

	// DefaultSuppressWindow is how long a remote write shadows events for
	// its path.
	DefaultSuppressWindow = time.Second
)

// SendFunc submits an outbound frame. Supplied by the connection session;
// the syncer never touches the socket directly.
type SendFunc func(frame any)

// Config holds syncer configuration.
type Config struct {
	Root           string
	Send           SendFunc
	DebounceWindow time.Duration
	SuppressWindow time.Duration
	Logger         *zap.Logger
}

// Syncer owns the directory scan, the filesystem watch, per-path debouncing,
// echo suppression, and the application of pushed and acknowledged updates.
type Syncer struct {
	root string
	send SendFunc
	log  *zap.Logger

	debounce *debouncer
	suppress *suppressor

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	started bool

	wg sync.WaitGroup
}

// New creates a syncer. It does nothing until Start.
func New(cfg Config) *Syncer {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Syncer{
		root:     cfg.Root,
		send:     cfg.Send,
		log:      cfg.Logger,
		suppress: newSuppressor(cfg.SuppressWindow),
		done:     make(chan struct{}),
	}
	s.debounce = newDebouncer(cfg.DebounceWindow, s.evaluate)
	return s
}

// Start scans the vault, emits the snapshot frame, and begins watching the
// tree for further changes.
func (s *Syncer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	files, err := Scan(s.root, s.log)
	if err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}
	metrics.SetSnapshotFiles(len(files))
	s.log.Info("vault scanned", zap.Int("documents", len(files)))
	s.send(protocol.FileSnapshot{Type: protocol.TypeFileSnapshot, Files: files})

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := s.addDirTree(w, s.root); err != nil {
		w.Close()
		return fmt.Errorf("watch vault: %w", err)
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	s.wg.Add(1)
	go s.watchLoop(w)
	return nil
}

// Stop halts the watch, cancels outstanding debounce timers, and clears
// suppression state. Idempotent.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	w := s.watcher
	s.watcher = nil
	close(s.done)
	s.mu.Unlock()

	if w != nil {
		w.Close()
	}
	s.wg.Wait()
	s.debounce.Stop()
	s.suppress.Clear()
}

// HandleServerPush applies a remotely-originated change locally, marking the
// affected paths suppressed before anything reaches disk.
func (s *Syncer) HandleServerPush(push protocol.FileSyncPush) error {
	switch push.Action {
	case protocol.ActionUpsert:
		metrics.RecordSyncOp(protocol.ActionUpsert, "remote")
		return s.applyUpsert(push.Path, push.Content)

	case protocol.ActionDelete:
		metrics.RecordSyncOp(protocol.ActionDelete, "remote")
		return s.applyDelete(push.Path)

	case protocol.ActionRename:
		metrics.RecordSyncOp(protocol.ActionRename, "remote")
		s.suppress.Mark(push.OldPath)
		s.suppress.Mark(push.Path)
		oldAbs := s.abs(push.OldPath)
		newAbs := s.abs(push.Path)
		if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
			s.log.Error("rename: create destination directory", zap.String("path", push.Path), zap.Error(err))
			return err
		}
		if err := os.Rename(oldAbs, newAbs); err != nil {
			if os.IsNotExist(err) {
				s.log.Warn("rename: source missing", zap.String("old_path", push.OldPath), zap.String("path", push.Path))
				return nil
			}
			s.log.Error("rename failed", zap.String("old_path", push.OldPath), zap.String("path", push.Path), zap.Error(err))
			return err
		}
		return nil

	default:
		err := fmt.Errorf("unknown sync action %q", push.Action)
		s.log.Warn("server push dropped", zap.Error(err))
		return err
	}
}

// HandleSnapshotAck materializes documents the app holds that the snapshot
// lacked, each with the same suppress-then-write discipline as an upsert.
func (s *Syncer) HandleSnapshotAck(ack protocol.FileSnapshotAck) {
	for _, update := range ack.Updates {
		var err error
		switch update.Action {
		case protocol.ActionDelete:
			metrics.RecordSyncOp(protocol.ActionDelete, "remote")
			err = s.applyDelete(update.Path)
		default:
			metrics.RecordSyncOp(protocol.ActionUpsert, "remote")
			err = s.applyUpsert(update.Path, update.Content)
		}
		if err != nil {
			s.log.Error("snapshot ack: apply update", zap.String("path", update.Path), zap.Error(err))
		}
	}
}

func (s *Syncer) applyUpsert(path, content string) error {
	s.suppress.Mark(path)
	abs := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		s.log.Error("upsert: create parent directory", zap.String("path", path), zap.Error(err))
		return err
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		s.log.Error("upsert: write file", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

func (s *Syncer) applyDelete(path string) error {
	s.suppress.Mark(path)
	if err := os.Remove(s.abs(path)); err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("delete: file already absent", zap.String("path", path))
			return nil
		}
		s.log.Error("delete failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

func (s *Syncer) watchLoop(w *fsnotify.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(w, event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *Syncer) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || hasDotSegment(rel) {
		return
	}

	// new directories join the watch so the tree stays covered
	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := s.addDirTree(w, event.Name); addErr != nil {
				s.log.Warn("watch new directory", zap.String("path", rel), zap.Error(addErr))
			}
			return
		}
	}

	if filepath.Ext(rel) != DocExt {
		return
	}

	metrics.RecordWatchEvent()
	s.debounce.Trigger(rel)
}

// evaluate runs once per path when its debounce window elapses: suppressed
// paths are discarded as echoes, otherwise the file's current state decides
// between an upsert and a delete frame.
func (s *Syncer) evaluate(rel string) {
	if s.suppress.Active(rel) {
		metrics.RecordEchoSuppressed()
		s.log.Debug("echo suppressed", zap.String("path", rel))
		return
	}

	content, err := os.ReadFile(s.abs(rel))
	if err != nil {
		if os.IsNotExist(err) {
			metrics.RecordSyncOp(protocol.ActionDelete, "local")
			s.send(protocol.FileSync{Type: protocol.TypeFileSync, Action: protocol.ActionDelete, Path: rel})
			return
		}
		s.log.Warn("evaluate: read file", zap.String("path", rel), zap.Error(err))
		return
	}

	metrics.RecordSyncOp(protocol.ActionUpsert, "local")
	s.send(protocol.FileSync{
		Type:    protocol.TypeFileSync,
		Action:  protocol.ActionUpsert,
		Path:    rel,
		Content: string(content),
	})
}

// addDirTree watches dir and every non-dot directory below it.
func (s *Syncer) addDirTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.Add(path); addErr != nil {
			s.log.Warn("watch directory", zap.String("path", path), zap.Error(addErr))
		}
		return nil
	})
}

func (s *Syncer) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func hasDotSegment(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
