package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"budget-rag/internal/processor"
	"budget-rag/internal/session"
)

// DefaultSettle is how long a file must stay unchanged before it is ingested
const DefaultSettle = 500 * time.Millisecond

type action int

const (
	actionNone action = iota
	actionIngest
	actionRemove
)

// Watcher keeps a session in sync with the PDFs of a directory
type Watcher struct {
	service *Service
	sess    *session.Session
	dir     string
	logger  *zap.Logger

	// Settle delays ingestion until writes to a file have stopped
	Settle time.Duration
	// OnStatus is called after every ingestion
	OnStatus func(Status)
}

// NewWatcher creates a watcher for dir
func NewWatcher(service *Service, sess *session.Session, dir string, logger *zap.Logger) *Watcher {
	return &Watcher{
		service: service,
		sess:    sess,
		dir:     dir,
		logger:  logger,
		Settle:  DefaultSettle,
	}
}

// Run watches the directory until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching directory for PDFs", zap.String("dir", w.dir))

	ready := make(chan string)
	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			switch handleEvent(event) {
			case actionIngest:
				path := event.Name
				mu.Lock()
				if t, ok := pending[path]; ok {
					t.Reset(w.Settle)
				} else {
					pending[path] = time.AfterFunc(w.Settle, func() {
						select {
						case ready <- path:
						case <-ctx.Done():
						}
					})
				}
				mu.Unlock()

			case actionRemove:
				id := processor.DocumentID(event.Name)
				removed, err := w.sess.RemoveDocument(ctx, id)
				if err != nil {
					w.logger.Error("Failed to remove document", zap.String("document", id), zap.Error(err))
				} else if removed {
					w.logger.Info("Document removed", zap.String("document", id))
				}
			}

		case path := <-ready:
			mu.Lock()
			delete(pending, path)
			mu.Unlock()

			st := w.service.IngestFile(ctx, w.sess, path)
			if w.OnStatus != nil {
				w.OnStatus(st)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// handleEvent maps a file system event to what the watcher should do.
// Directories, hidden files and non-PDF files are ignored.
func handleEvent(event fsnotify.Event) action {
	if !IsPDF(event.Name) {
		return actionNone
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return actionRemove
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return actionIngest
	default:
		return actionNone
	}
}
