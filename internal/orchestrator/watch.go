package orchestrator

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
)

// WatchHandoffs streams the filenames of handoffs written to the bound
// session while ctx is live. The store writes via temp-and-rename, so a
// finished document surfaces as a create event; the latest-handoff
// mirror and temp files are filtered out. The channel closes when ctx
// is cancelled.
func (o *Orchestrator) WatchHandoffs(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := o.store.Path("handoffs")
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer watcher.Close()
		seen := map[string]bool{}

		logging.Session("watching %s", dir)
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if !isHandoffFile(name) || seen[name] {
					continue
				}
				seen[name] = true
				select {
				case out <- name:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.SessionWarn("handoff watcher: %v", err)
			}
		}
	}()
	return out, nil
}

func isHandoffFile(name string) bool {
	return strings.HasPrefix(name, "handoff-") && strings.HasSuffix(name, ".json")
}
