// Package reconcile keeps vault documents and remote notes in step. It
// decides per document whether to create, update, or flag a note, and
// carries reviewer feedback from the remote back into the document.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/notice"
	"github.com/starford/cardsync/internal/transform"
)

// Tags written into documents by a run.
const (
	RevisionTag = "marked"
	RemovedTag  = "removed"
)

// ErrNoTargetFolder is returned by Scan when neither the caller nor the
// settings name a folder.
var ErrNoTargetFolder = errors.New("reconcile: target folder is not set")

var revisionRe = regexp.MustCompile(`(?s)marked:(.*?);`)

// DocumentStore is the vault as seen by a run.
type DocumentStore interface {
	Documents(ctx context.Context, dir string) ([]models.DocumentMeta, error)
	Load(ctx context.Context, path string) (*models.Document, error)
	SetIdentity(ctx context.Context, path string, id int64) error
	ClearIdentity(ctx context.Context, path string) error
	AddTag(ctx context.Context, path, tag string) (bool, error)
	AppendLine(ctx context.Context, path, line string) (bool, error)
}

// Remote is the flashcard service.
type Remote interface {
	CreateRecord(ctx context.Context, card models.Card) (int64, error)
	UpdateRecord(ctx context.Context, id int64, card models.Card) error
	DeleteRecords(ctx context.Context, ids []int64) error
	CreateGroup(ctx context.Context, name string) error
	StoreMedia(ctx context.Context, refs []models.ImageRef) error
	QueryRecords(ctx context.Context, q models.RecordQuery) (models.RecordSet, error)
	Ping(ctx context.Context) (int, error)
}

// Ledger keeps the history of runs.
type Ledger interface {
	BeginRun(kind, target string) (string, error)
	FinishRun(id string, report *models.Report, runErr error) error
	RecordOutcome(runID string, o models.Outcome) error
	LastChecksum(path string) (string, error)
}

// Settings controls run behavior.
type Settings struct {
	// TargetFolder is scanned when Scan is called without a folder.
	TargetFolder string
	// AbortOnMediaFailure skips a document whose images failed to upload
	// instead of pushing its card without them.
	AbortOnMediaFailure bool
	// SkipUnchanged skips updates whose card matches the last pushed one.
	SkipUnchanged bool
}

// Decision is what a run does with one document.
type Decision int

const (
	// DecisionCreate pushes a new note and stores its id in the document.
	DecisionCreate Decision = iota
	// DecisionUpdate overwrites the fields of the document's note.
	DecisionUpdate
	// DecisionAnnotateRemoved tags the document because its note no longer
	// exists. The identity is kept.
	DecisionAnnotateRemoved
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	case DecisionAnnotateRemoved:
		return "annotate-removed"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Decide picks the action for doc given the remote note carrying its
// identity, or nil when no such note exists. It performs no I/O.
func Decide(doc *models.Document, remote *models.Record) Decision {
	switch {
	case !doc.HasID():
		return DecisionCreate
	case remote == nil:
		return DecisionAnnotateRemoved
	default:
		return DecisionUpdate
	}
}

// ExtractRevisionReason returns the reviewer's note embedded in a Back
// field as "marked:<reason>;", or an empty string.
func ExtractRevisionReason(back string) string {
	m := revisionRe.FindStringSubmatch(back)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Reconciler runs syncs. Its methods are safe for concurrent use; at most
// one run is active at a time and concurrent requests fail fast.
type Reconciler struct {
	docs        DocumentStore
	remote      Remote
	transformer *transform.Transformer
	settings    Settings

	guard    *Guard
	notifier notice.Notifier
	ledger   Ledger
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithGuard shares g with other components.
func WithGuard(g *Guard) Option {
	return func(r *Reconciler) {
		r.guard = g
	}
}

// WithNotifier sets where user notices go.
func WithNotifier(n notice.Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithLedger records runs and outcomes in l.
func WithLedger(l Ledger) Option {
	return func(r *Reconciler) {
		r.ledger = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New returns a Reconciler.
func New(docs DocumentStore, remote Remote, transformer *transform.Transformer, settings Settings, opts ...Option) *Reconciler {
	r := &Reconciler{
		docs:        docs,
		remote:      remote,
		transformer: transformer,
		settings:    settings,
		guard:       NewGuard(""),
		notifier:    notice.Discard,
		ledger:      nopLedger{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a run is in progress.
func (r *Reconciler) Running() bool {
	return r.guard.Running()
}

// Scan syncs every document in folder, or in the configured target folder
// when folder is empty. Only connectivity failures end the run early.
func (r *Reconciler) Scan(ctx context.Context, folder string) (*models.Report, error) {
	if folder == "" {
		folder = r.settings.TargetFolder
	}
	if folder == "" {
		r.notifier.Notify(notice.Warn("", "Target folder needs to be set for this action"))
		return nil, ErrNoTargetFolder
	}

	release, err := r.guard.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rn := r.begin(kindScan, folder)

	metas, err := r.docs.Documents(ctx, folder)
	if err != nil {
		r.notifier.Notify(notice.Error("", "Could not read folder %s: %v", folder, err))
		return rn.finish(err)
	}
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return rn.finish(err)
		}
		if err := rn.process(ctx, m.Path); err != nil {
			return rn.finish(err)
		}
	}

	rep, err := rn.finish(nil)
	r.notifier.Notify(notice.Info("", "Sync finished: %d created, %d updated, %d removed, %d marked, %d failed",
		rep.Created, rep.Updated, rep.Removed, rep.Marked, rep.Failed))
	return rep, err
}

// SyncDocument adds or updates the note of a single document.
func (r *Reconciler) SyncDocument(ctx context.Context, path string) (*models.Report, error) {
	release, err := r.guard.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rn := r.begin(kindSync, path)
	rn.byID = true
	return rn.finish(rn.process(ctx, path))
}

// DeleteDocument deletes the note of a document and removes the identity
// from it. A document without identity is rejected before any remote call.
func (r *Reconciler) DeleteDocument(ctx context.Context, path string) error {
	release, err := r.guard.Acquire()
	if err != nil {
		return err
	}
	defer release()

	rn := r.begin(kindDelete, path)

	doc, err := r.docs.Load(ctx, path)
	if err != nil {
		r.notifier.Notify(notice.Error(path, "Could not read document: %v", err))
		_, err = rn.finish(err)
		return err
	}
	if !doc.HasID() {
		r.notifier.Notify(notice.Warn(path, "Document has no anki-id, nothing to delete"))
		_, err = rn.finish(fmt.Errorf("%w: %s", apperr.ErrMissingIdentity, path))
		return err
	}
	id := *doc.ID

	if err := r.remote.DeleteRecords(ctx, []int64{id}); err != nil {
		if isFatal(err) {
			r.notifier.Notify(notice.Error(path, "Could not connect to Anki"))
		} else {
			r.notifier.Notify(notice.Error(path, "Anki refused to delete the card: %v", err))
		}
		rn.add(models.Outcome{Path: path, Action: models.ActionFailed, RecordID: id, Detail: err.Error()})
		_, err = rn.finish(err)
		return err
	}

	if err := r.docs.ClearIdentity(ctx, path); err != nil {
		r.notifier.Notify(notice.Error(path, "Card deleted but the anki-id could not be removed: %v", err))
		rn.add(models.Outcome{Path: path, Action: models.ActionFailed, RecordID: id, Detail: err.Error()})
		_, err = rn.finish(err)
		return err
	}

	rn.add(models.Outcome{Path: path, Action: models.ActionDeleted, RecordID: id})
	r.notifier.Notify(notice.Info(path, "Card deleted"))
	_, err = rn.finish(nil)
	return err
}

// Ping checks that the remote answers and reports the result as a notice.
func (r *Reconciler) Ping(ctx context.Context) error {
	v, err := r.remote.Ping(ctx)
	if err != nil {
		r.notifier.Notify(notice.Error("", "Could not connect to Anki"))
		return err
	}
	r.notifier.Notify(notice.Info("", "Connected to Anki (protocol version %d)", v))
	return nil
}

// isFatal reports errors that end a run.
func isFatal(err error) bool {
	return errors.Is(err, apperr.ErrConnectivity) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

type nopLedger struct{}

func (nopLedger) BeginRun(string, string) (string, error) { return "", nil }
func (nopLedger) FinishRun(string, *models.Report, error) error { return nil }
func (nopLedger) RecordOutcome(string, models.Outcome) error { return nil }
func (nopLedger) LastChecksum(string) (string, error) { return "", nil }
