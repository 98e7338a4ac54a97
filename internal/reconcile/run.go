package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/media"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/notice"
)

const (
	kindScan   = "scan"
	kindSync   = "sync"
	kindDelete = "delete"
)

// run holds the state of one sync pass. It lives only while the guard is
// held.
type run struct {
	r      *Reconciler
	id     string
	report *models.Report
	decks  *deck.Registry

	// byID looks notes up by identity instead of listing whole decks.
	byID bool
	// groups caches the notes of each deck listed this run.
	groups map[string]map[int64]models.Record
}

func (r *Reconciler) begin(kind, target string) *run {
	id, err := r.ledger.BeginRun(kind, target)
	if err != nil {
		r.logger.Warn("reconcile: ledger begin failed", slog.String("error", err.Error()))
	}
	r.logger.Info("reconcile: run started",
		slog.String("run_id", id),
		slog.String("kind", kind),
		slog.String("target", target))

	return &run{
		r:  r,
		id: id,
		report: &models.Report{
			RunID:     id,
			Kind:      kind,
			Target:    target,
			StartedAt: time.Now(),
			Outcomes:  []models.Outcome{},
		},
		decks:  deck.NewRegistry(r.remote),
		groups: make(map[string]map[int64]models.Record),
	}
}

// finish closes the run. A connectivity failure is announced once here.
func (rn *run) finish(runErr error) (*models.Report, error) {
	rn.report.FinishedAt = time.Now()
	if err := rn.r.ledger.FinishRun(rn.id, rn.report, runErr); err != nil {
		rn.r.logger.Warn("reconcile: ledger finish failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		if errors.Is(runErr, apperr.ErrConnectivity) {
			rn.r.notifier.Notify(notice.Error("", "Could not connect to Anki"))
		}
		rn.r.logger.Error("reconcile: run aborted",
			slog.String("run_id", rn.id),
			slog.String("error", runErr.Error()))
		return rn.report, runErr
	}

	rn.r.logger.Info("reconcile: run finished",
		slog.String("run_id", rn.id),
		slog.Int("created", rn.report.Created),
		slog.Int("updated", rn.report.Updated),
		slog.Int("removed", rn.report.Removed),
		slog.Int("marked", rn.report.Marked),
		slog.Int("skipped", rn.report.Skipped),
		slog.Int("failed", rn.report.Failed),
		slog.Duration("elapsed", rn.report.FinishedAt.Sub(rn.report.StartedAt)))
	return rn.report, nil
}

func (rn *run) add(o models.Outcome) {
	rn.report.Add(o)
	if err := rn.r.ledger.RecordOutcome(rn.id, o); err != nil {
		rn.r.logger.Warn("reconcile: ledger outcome failed",
			slog.String("path", o.Path),
			slog.String("error", err.Error()))
	}
}

// fail records a non-fatal per-document failure and tells the user.
func (rn *run) fail(path string, id int64, msg string, err error) {
	rn.r.notifier.Notify(notice.Error(path, "%s: %v", msg, err))
	rn.r.logger.Warn("reconcile: document failed",
		slog.String("path", path),
		slog.String("error", err.Error()))
	rn.add(models.Outcome{Path: path, Action: models.ActionFailed, RecordID: id, Detail: err.Error()})
}

// process handles one document. Only errors that end the run are returned.
func (rn *run) process(ctx context.Context, path string) error {
	r := rn.r

	doc, err := r.docs.Load(ctx, path)
	if err != nil {
		if rn.report.Kind == kindSync && errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		rn.fail(path, 0, "Could not read document", err)
		return nil
	}

	group, err := r.transformer.Deck(doc)
	if err != nil {
		// Only exclusion can fail here.
		r.logger.Debug("reconcile: document excluded",
			slog.String("path", path),
			slog.String("reason", err.Error()))
		rn.add(models.Outcome{Path: path, Action: models.ActionSkipped, Detail: "excluded"})
		return nil
	}

	var remote *models.Record
	if doc.HasID() {
		remote, err = rn.lookup(ctx, group, *doc.ID)
		if err != nil {
			if isFatal(err) {
				return err
			}
			rn.fail(path, *doc.ID, "Could not query Anki", err)
			return nil
		}
		if remote != nil && remote.HasTag(RevisionTag) {
			if doc, err = rn.annotateRevision(ctx, doc, remote); err != nil {
				rn.fail(path, *doc.ID, "Could not mark document for revision", err)
				return nil
			}
		}
	}

	switch Decide(doc, remote) {
	case DecisionAnnotateRemoved:
		return rn.annotateRemoved(ctx, doc)
	case DecisionUpdate:
		return rn.push(ctx, doc, group, false)
	default:
		return rn.push(ctx, doc, group, true)
	}
}

// lookup returns the note with id, or nil when the remote has none. In a
// scan the document's deck is listed once and reused; a miss is confirmed
// by id so documents whose deck changed are not flagged as removed.
func (rn *run) lookup(ctx context.Context, group string, id int64) (*models.Record, error) {
	if !rn.byID {
		notes, err := rn.deckNotes(ctx, group)
		if err != nil {
			return nil, err
		}
		if rec, ok := notes[id]; ok {
			return &rec, nil
		}
	}

	set, err := rn.r.remote.QueryRecords(ctx, models.RecordQuery{IDs: []int64{id}})
	if err != nil {
		return nil, err
	}
	rn.report.Quarantined += set.Quarantined
	for _, rec := range set.Records {
		if rec.ID == id {
			return &rec, nil
		}
	}
	return nil, nil
}

func (rn *run) deckNotes(ctx context.Context, group string) (map[int64]models.Record, error) {
	if notes, ok := rn.groups[group]; ok {
		return notes, nil
	}
	set, err := rn.r.remote.QueryRecords(ctx, models.RecordQuery{Group: group})
	if err != nil {
		return nil, err
	}
	rn.report.Quarantined += set.Quarantined
	notes := make(map[int64]models.Record, len(set.Records))
	for _, rec := range set.Records {
		notes[rec.ID] = rec
	}
	rn.groups[group] = notes
	return notes, nil
}

// annotateRevision tags doc for revision and appends the reviewer's reason.
// It returns the reloaded document when the file changed.
func (rn *run) annotateRevision(ctx context.Context, doc *models.Document, remote *models.Record) (*models.Document, error) {
	r := rn.r
	tagged, err := r.docs.AddTag(ctx, doc.Path, RevisionTag)
	if err != nil {
		return doc, err
	}
	appended := false
	if reason := ExtractRevisionReason(remote.Fields.Back); reason != "" {
		if appended, err = r.docs.AppendLine(ctx, doc.Path, RevisionTag+": "+reason); err != nil {
			return doc, err
		}
	}
	if !tagged && !appended {
		return doc, nil
	}

	rn.report.Mark()
	r.notifier.Notify(notice.Info(doc.Path, "Card marked for revision"))
	r.logger.Info("reconcile: marked for revision",
		slog.String("path", doc.Path),
		slog.Int64("record_id", remote.ID))

	reloaded, err := r.docs.Load(ctx, doc.Path)
	if err != nil {
		return doc, err
	}
	return reloaded, nil
}

func (rn *run) annotateRemoved(ctx context.Context, doc *models.Document) error {
	r := rn.r
	id := *doc.ID
	changed, err := r.docs.AddTag(ctx, doc.Path, RemovedTag)
	if err != nil {
		rn.fail(doc.Path, id, "Could not flag removed card", err)
		return nil
	}
	detail := "already flagged"
	if changed {
		detail = "note no longer exists"
		r.notifier.Notify(notice.Warn(doc.Path, "Card was deleted in Anki"))
		r.logger.Info("reconcile: flagged removed record",
			slog.String("path", doc.Path),
			slog.Int64("record_id", id))
	}
	rn.add(models.Outcome{Path: doc.Path, Action: models.ActionRemoved, RecordID: id, Detail: detail})
	return nil
}

// push creates or updates the note of doc: ensure deck, upload media, then
// write the note.
func (rn *run) push(ctx context.Context, doc *models.Document, group string, create bool) error {
	r := rn.r
	var id int64
	if doc.HasID() {
		id = *doc.ID
	}

	res, err := r.transformer.Build(doc)
	if err != nil {
		rn.fail(doc.Path, id, "Could not build card", err)
		return nil
	}
	sum := checksum.Card(res.Card)

	if !create && r.settings.SkipUnchanged {
		last, err := r.ledger.LastChecksum(doc.Path)
		if err != nil {
			r.logger.Warn("reconcile: ledger lookup failed", slog.String("error", err.Error()))
		}
		if last != "" && last == sum {
			rn.add(models.Outcome{Path: doc.Path, Action: models.ActionUnchanged, RecordID: id, Group: group})
			return nil
		}
	}

	if err := rn.decks.Ensure(ctx, group); err != nil {
		if isFatal(err) {
			return err
		}
		rn.fail(doc.Path, id, fmt.Sprintf("Could not create deck %q", group), err)
		return nil
	}

	if err := media.Upload(ctx, r.remote, res.Images); err != nil {
		r.notifier.Notify(notice.Warn(doc.Path, "Could not upload images: %v", err))
		r.logger.Warn("reconcile: media upload failed",
			slog.String("path", doc.Path),
			slog.String("error", err.Error()))
		if r.settings.AbortOnMediaFailure {
			rn.add(models.Outcome{Path: doc.Path, Action: models.ActionFailed, RecordID: id, Group: group, Detail: err.Error()})
			return nil
		}
	}

	if create {
		return rn.create(ctx, doc, res.Card, sum)
	}

	if err := r.remote.UpdateRecord(ctx, id, res.Card); err != nil {
		if isFatal(err) {
			return err
		}
		rn.fail(doc.Path, id, "Anki rejected the update", err)
		return nil
	}
	r.logger.Info("reconcile: updated record",
		slog.String("path", doc.Path),
		slog.Int64("record_id", id),
		slog.String("deck", group))
	rn.add(models.Outcome{Path: doc.Path, Action: models.ActionUpdated, RecordID: id, Group: group, Checksum: sum})
	return nil
}

func (rn *run) create(ctx context.Context, doc *models.Document, card models.Card, sum string) error {
	r := rn.r
	id, err := r.remote.CreateRecord(ctx, card)
	if err != nil {
		if isFatal(err) {
			return err
		}
		rn.fail(doc.Path, 0, "Anki rejected the card", err)
		return nil
	}

	if err := r.docs.SetIdentity(ctx, doc.Path, id); err != nil {
		// The note exists remotely; keep its id in the ledger so it can be
		// reattached by hand.
		rn.fail(doc.Path, id, fmt.Sprintf("Card %d created but its id could not be saved", id), err)
		return nil
	}

	r.logger.Info("reconcile: created record",
		slog.String("path", doc.Path),
		slog.Int64("record_id", id),
		slog.String("deck", card.Group))
	rn.add(models.Outcome{Path: doc.Path, Action: models.ActionCreated, RecordID: id, Group: card.Group, Checksum: sum})
	return nil
}
