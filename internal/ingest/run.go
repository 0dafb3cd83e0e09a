package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// State is the phase a catalog run is in.
type State string

const (
	StateInit        State = "INIT"
	StateFetching    State = "FETCHING"
	StateReading     State = "READING"
	StateReconciling State = "RECONCILING"
	StatePruning     State = "PRUNING"
	StateCleanup     State = "CLEANUP"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// ErrScratchExists aborts a run when the scratch directory is left over
// from a previous incomplete run. Policy: never silently reuse a scratch
// area; the operator removes it after inspecting the failed run.
var ErrScratchExists = errors.New("scratch directory already exists")

// Event is one progress notification published while a run executes.
type Event struct {
	Type    string `json:"type"` // run_started, run_progress, run_error, run_finished
	RunID   string `json:"run_id"`
	State   State  `json:"state,omitempty"`
	BookID  int    `json:"book_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventSink receives run events. A nil sink disables publishing.
type EventSink interface {
	Publish(event any)
}

// Runner sequences one catalog run: fetch, stream-extract-reconcile,
// stale-removal, cleanup, report. Runs must not overlap; the scratch
// directory precondition enforces that on a single host.
type Runner struct {
	DB     *sql.DB
	Cfg    Config
	Client *http.Client
	Feed   EventSink // optional
}

func NewRunner(db *sql.DB, cfg Config) *Runner {
	return &Runner{
		DB:     db,
		Cfg:    cfg,
		Client: &http.Client{Timeout: 30 * time.Minute},
	}
}

// Result summarizes one finished run.
type Result struct {
	RunID     string
	State     State
	Seen      int
	Deleted   int
	FailedIDs []int
	LogPath   string
	Err       error
}

// Run executes the whole pipeline. The returned error is the fatal error
// that moved the run to FAILED, nil otherwise; per-record failures do not
// abort the run and are listed in the result instead.
func (r *Runner) Run(ctx context.Context) Result {
	res := Result{State: StateInit}

	rl, err := NewRunLog(r.Cfg.LogDir)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return res
	}
	defer rl.Close()
	res.RunID = rl.ID
	res.LogPath = rl.Path

	rl.Logf("Starting catalog run %s at %s", rl.ID, time.Now().Format("15:04:05 on January 2, 2006"))
	r.publish(Event{Type: "run_started", RunID: rl.ID, State: StateInit})

	runErr := r.execute(ctx, rl, &res)
	if runErr != nil {
		res.State = StateFailed
		res.Err = runErr
		rl.Errorf("Error: %v", runErr)
		r.publish(Event{Type: "run_error", RunID: rl.ID, State: StateFailed, Message: runErr.Error()})
		// best-effort cleanup of whatever the failed run left behind
		if !errors.Is(runErr, ErrScratchExists) {
			os.RemoveAll(r.Cfg.TempDir)
		}
	} else {
		res.State = StateDone
		rl.Logf("Done. %d books seen, %d stale books removed, %d records failed.",
			res.Seen, res.Deleted, len(res.FailedIDs))
	}

	if err := SendReport(r.Cfg, rl.Text()); err != nil {
		rl.Errorf("Could not send report: %v", err)
	}

	r.publish(Event{Type: "run_finished", RunID: rl.ID, State: res.State})
	return res
}

func (r *Runner) execute(ctx context.Context, rl *RunLog, res *Result) error {
	rl.Logf("  Making temporary directory...")
	if _, err := os.Stat(r.Cfg.TempDir); err == nil {
		return fmt.Errorf("%w: %s", ErrScratchExists, r.Cfg.TempDir)
	}
	if err := os.MkdirAll(r.Cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("make temp dir: %w", err)
	}

	res.State = StateFetching
	rl.Logf("  Downloading compressed catalog...")
	dest := filepath.Join(r.Cfg.TempDir, archiveFileName(r.Cfg.CatalogURL))
	if err := FetchArchive(ctx, r.Client, r.Cfg.CatalogURL, dest); err != nil {
		return err
	}

	res.State = StateReading
	rl.Logf("  Putting the catalog in the database...")
	ar, err := OpenArchive(dest)
	if err != nil {
		return err
	}
	defer ar.Close()

	res.State = StateReconciling
	rec := NewReconciler(r.DB)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := ar.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// a broken tar stream is fatal, not a per-record problem
			return err
		}

		if r.Cfg.ProgressEvery > 0 && m.ID > 0 && m.ID%r.Cfg.ProgressEvery == 0 {
			rl.Logf("    %d", m.ID)
			r.publish(Event{Type: "run_progress", RunID: rl.ID, State: StateReconciling, BookID: m.ID})
		}

		book, err := ExtractBook(m.ID, m.Name, m.Body)
		if err != nil {
			rl.Errorf("  Could not extract %s: %v", m.Name, err)
			res.FailedIDs = append(res.FailedIDs, m.ID)
			// the member was in the archive, so the book is not stale
			rec.MarkSeen(m.ID)
			continue
		}

		if err := rec.ReconcileBook(ctx, book); err != nil {
			// log the whole record for post-mortem, then carry on;
			// the failed record's transaction has been rolled back
			payload, _ := json.MarshalIndent(book, "", "    ")
			rl.Errorf("  Error while putting this book info in the database:\n%s\n%v", payload, err)
			res.FailedIDs = append(res.FailedIDs, m.ID)
			rec.MarkSeen(m.ID)
			continue
		}
	}
	res.Seen = rec.SeenCount()

	res.State = StatePruning
	rl.Logf("  Removing stale books...")
	deleted, err := rec.DeleteStale(ctx)
	if err != nil {
		return fmt.Errorf("delete stale books: %w", err)
	}
	res.Deleted = deleted

	res.State = StateCleanup
	rl.Logf("  Removing temporary files...")
	if err := os.RemoveAll(r.Cfg.TempDir); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}
	return nil
}

func (r *Runner) publish(ev Event) {
	if r.Feed != nil {
		r.Feed.Publish(ev)
	}
}

// archiveFileName keeps the remote file's extension so the archive reader
// can pick the right decompressor.
func archiveFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || path.Base(u.Path) == "." || path.Base(u.Path) == "/" {
		return "catalog.tar.bz2"
	}
	return path.Base(u.Path)
}
