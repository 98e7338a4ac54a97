package reconcile

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/cardsync/internal/anki"
	"github.com/starford/cardsync/internal/anki/ankitest"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/identity"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/notice"
	"github.com/starford/cardsync/internal/parser"
	"github.com/starford/cardsync/internal/render"
	"github.com/starford/cardsync/internal/testutil"
	"github.com/starford/cardsync/internal/transform"
	"github.com/starford/cardsync/internal/vault"
)

type fixture struct {
	dir     string
	srv     *ankitest.Server
	notices *notice.Recorder
	ledger  *ledger.DB
	guard   *Guard
	rec     *Reconciler
}

type fixtureOpts struct {
	settings    Settings
	excludeTags []string
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	dir, store := testutil.TestVault(t)
	srv := ankitest.New(t)
	client := anki.New(anki.Config{URL: srv.URL, Timeout: 2 * time.Second})

	tr := transform.New(transform.Settings{
		DefaultDeck:   "Default",
		ExcludeTags:   o.excludeTags,
		BasePath:      dir,
		AssetFolder:   "attachments",
		DiagramFolder: "Excalidraw",
	}, render.NewMarkdown(false))

	f := &fixture{
		dir:     dir,
		srv:     srv,
		notices: &notice.Recorder{},
		ledger:  testutil.TestLedger(t),
		guard:   NewGuard(""),
	}
	if o.settings.TargetFolder == "" {
		o.settings.TargetFolder = "cards"
	}
	f.rec = New(vault.New(store, true), client, tr, o.settings,
		WithNotifier(f.notices),
		WithLedger(f.ledger),
		WithGuard(f.guard))
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	testutil.WriteDoc(t, f.dir, rel, content)
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	return testutil.ReadDoc(t, f.dir, rel)
}

func (f *fixture) id(t *testing.T, rel string) int64 {
	t.Helper()
	id, ok := identity.Extract(f.read(t, rel))
	require.True(t, ok, "no identity in %s", rel)
	return id
}

func tagsOf(t *testing.T, content string) []string {
	t.Helper()
	res, err := parser.Parse([]byte(content))
	require.NoError(t, err)
	return res.Tags
}

func TestScan_CreatesNewDocument(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/Mitosis.md", "---\ntags: [cell-biology]\n---\nProphase, metaphase, anaphase.\n")

	rep, err := f.rec.Scan(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)

	id := f.id(t, "cards/Mitosis.md")
	note, ok := f.srv.Note(id)
	require.True(t, ok)
	assert.Equal(t, "cell biology", note.Deck)
	assert.Equal(t, "Mitosis", note.Front)
	assert.Contains(t, note.Back, "Prophase, metaphase, anaphase.")
	assert.True(t, f.srv.HasDeck("cell biology"))
	assert.True(t, strings.HasSuffix(f.read(t, "cards/Mitosis.md"), "---\nProphase, metaphase, anaphase.\n"))
}

func TestScan_UpdatesExistingRecord(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("physics", "Entropy", "old")
	f.write(t, "cards/Entropy.md", "---\nanki-id: "+itoa(id)+"\ntags: [physics]\n---\nDisorder grows.\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 0, rep.Created)

	note, _ := f.srv.Note(id)
	assert.Contains(t, note.Back, "Disorder grows.")
	assert.Equal(t, 0, f.srv.CallCount("addNote"))
	assert.Equal(t, 1, f.srv.NoteCount())
}

func TestScan_ExcludedDocumentMakesNoRemoteCalls(t *testing.T) {
	f := newFixture(t, fixtureOpts{excludeTags: []string{"#draft"}})
	f.write(t, "cards/Draft.md", "---\ntags: [physics, draft]\n---\nNot ready.\n")
	before := f.read(t, "cards/Draft.md")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, f.srv.Calls())
	assert.Equal(t, before, f.read(t, "cards/Draft.md"))
}

func TestScan_UploadsImages(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "attachments/diagram.png", "png")
	f.write(t, "cards/Cell.md", "---\ntags: [biology]\n---\nSee ![[diagram.png]] and [[Nucleus]].\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	require.Equal(t, 1, rep.Created)

	assert.Equal(t, filepath.Join(f.dir, "attachments", "diagram.png"), f.srv.Media()["diagram.png"])
	note, _ := f.srv.Note(f.id(t, "cards/Cell.md"))
	assert.Contains(t, note.Back, "<img src='diagram.png'>")
	assert.Contains(t, note.Back, "<em>Nucleus</em>")
	assert.Equal(t, 1, f.srv.CallCount("multi"))
}

func TestScan_MediaFailure(t *testing.T) {
	t.Run("proceeds by default", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		f.write(t, "cards/Cell.md", "![[missing.png]]\n")

		rep, err := f.rec.Scan(context.Background(), "cards")
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Created)
		assert.Contains(t, strings.Join(f.notices.Messages(), "\n"), "Could not upload images")
	})

	t.Run("abort skips the document", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{settings: Settings{AbortOnMediaFailure: true}})
		f.write(t, "cards/Cell.md", "![[missing.png]]\n")

		rep, err := f.rec.Scan(context.Background(), "cards")
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Failed)
		assert.Equal(t, 0, f.srv.CallCount("addNote"))
		_, ok := identity.Extract(f.read(t, "cards/Cell.md"))
		assert.False(t, ok)
	})
}

func TestScan_MarkedForRevision(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("biology", "Cell", "<p>old</p>\nmarked: wrong definition;", "marked")
	f.write(t, "cards/Cell.md", "---\nanki-id: "+itoa(id)+"\ntags: [biology]\n---\nA cell is a unit.\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Marked)
	assert.Equal(t, 1, rep.Updated)

	content := f.read(t, "cards/Cell.md")
	assert.Contains(t, tagsOf(t, content), "#marked")
	assert.Contains(t, content, "\nmarked: wrong definition\n")
	assert.Equal(t, id, f.id(t, "cards/Cell.md"))

	// Annotation is idempotent: a second pass leaves the file alone.
	f.srv.SetTags(id, "marked")
	f.srv.SetBack(id, "marked: wrong definition;")
	rep, err = f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Marked)
	assert.Equal(t, content, f.read(t, "cards/Cell.md"))
}

func TestScan_MarkedWithoutReason(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("Default", "Q", "no reason here", "marked")
	f.write(t, "cards/Q.md", "---\nanki-id: "+itoa(id)+"\n---\nAnswer\n")

	_, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	content := f.read(t, "cards/Q.md")
	assert.Contains(t, tagsOf(t, content), "#marked")
	assert.NotContains(t, content, "marked:")
}

func TestScan_RemovedRemotely(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/Gone.md", "---\nanki-id: 424242\ntags: [history]\n---\nBody\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Removed)

	content := f.read(t, "cards/Gone.md")
	assert.Contains(t, tagsOf(t, content), "#removed")
	assert.Equal(t, int64(424242), f.id(t, "cards/Gone.md"))
	assert.Equal(t, 0, f.srv.CallCount("addNote"))
	assert.Equal(t, 0, f.srv.CallCount("updateNote"))

	// Flagging twice does not rewrite the file.
	_, err = f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, content, f.read(t, "cards/Gone.md"))
}

func TestScan_DeckChangedIsNotRemoved(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("old deck", "Moved", "body")
	f.write(t, "cards/Moved.md", "---\nanki-id: "+itoa(id)+"\ntags: [new-deck]\n---\nBody\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 0, rep.Removed)
}

func TestScan_QueriesEachDeckOnce(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	a := f.srv.AddNote("bio", "A", "a")
	b := f.srv.AddNote("bio", "B", "b")
	f.write(t, "cards/A.md", "---\nanki-id: "+itoa(a)+"\ntags: [bio]\n---\nA\n")
	f.write(t, "cards/B.md", "---\nanki-id: "+itoa(b)+"\ntags: [bio]\n---\nB\n")

	_, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, f.srv.CallCount("findNotes"))
	assert.Equal(t, 1, f.srv.CallCount("createDeck"))
}

func TestScan_ConnectivityAbortsRun(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/A.md", "A\n")
	f.write(t, "cards/B.md", "B\n")
	f.srv.SetDown(true)

	_, err := f.rec.Scan(context.Background(), "cards")
	require.ErrorIs(t, err, apperr.ErrConnectivity)

	var connect int
	for _, m := range f.notices.Messages() {
		if m == "Could not connect to Anki" {
			connect++
		}
	}
	assert.Equal(t, 1, connect)
	assert.False(t, f.rec.Running())

	// The guard was released; the next run proceeds.
	f.srv.SetDown(false)
	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Created)
}

func TestScan_RejectionIsPerDocument(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("Default", "Existing", "old")
	f.write(t, "cards/A.md", "new\n")
	f.write(t, "cards/Existing.md", "---\nanki-id: "+itoa(id)+"\n---\nfresh\n")
	f.srv.Fail("addNote", "cannot create note because it is a duplicate")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Updated)
	assert.Contains(t, strings.Join(f.notices.Messages(), "\n"), "duplicate")
}

func TestScan_SkipUnchanged(t *testing.T) {
	f := newFixture(t, fixtureOpts{settings: Settings{SkipUnchanged: true}})
	f.write(t, "cards/A.md", "body\n")

	_, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, f.srv.CallCount("updateNote"))

	f.write(t, "cards/A.md", "---\nanki-id: "+itoa(f.id(t, "cards/A.md"))+"\n---\nchanged body\n")
	rep, err = f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
}

func TestScan_NoTargetFolder(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.rec.settings.TargetFolder = ""

	_, err := f.rec.Scan(context.Background(), "")
	require.ErrorIs(t, err, ErrNoTargetFolder)
	assert.Equal(t, []string{"Target folder needs to be set for this action"}, f.notices.Messages())
	assert.Empty(t, f.srv.Calls())
}

func TestScan_RunInProgress(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/A.md", "A\n")

	release, err := f.guard.Acquire()
	require.NoError(t, err)

	_, err = f.rec.Scan(context.Background(), "cards")
	require.ErrorIs(t, err, apperr.ErrRunInProgress)
	_, err = f.rec.SyncDocument(context.Background(), "cards/A.md")
	require.ErrorIs(t, err, apperr.ErrRunInProgress)
	require.ErrorIs(t, f.rec.DeleteDocument(context.Background(), "cards/A.md"), apperr.ErrRunInProgress)
	assert.Empty(t, f.notices.Messages())
	assert.Empty(t, f.srv.Calls())

	release()
	_, err = f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)
}

func TestSyncDocument(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("chem", "Acid", "old")
	f.write(t, "cards/Acid.md", "---\nanki-id: "+itoa(id)+"\ntags: [chem]\n---\npH below 7\n")

	rep, err := f.rec.SyncDocument(context.Background(), "cards/Acid.md")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 0, f.srv.CallCount("findNotes"))
	assert.Equal(t, 1, f.srv.CallCount("notesInfo"))
}

func TestSyncDocument_NotFound(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.rec.SyncDocument(context.Background(), "cards/nope.md")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	id := f.srv.AddNote("Default", "A", "a")
	f.write(t, "cards/A.md", "---\nanki-id: "+itoa(id)+"\ntags: [x]\n---\nA\n")

	require.NoError(t, f.rec.DeleteDocument(context.Background(), "cards/A.md"))
	_, ok := f.srv.Note(id)
	assert.False(t, ok)
	assert.Equal(t, "---\ntags: [x]\n---\nA\n", f.read(t, "cards/A.md"))

	docs, err := f.ledger.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, string(models.ActionDeleted), docs[0].Action)
}

func TestDeleteDocument_WithoutIdentity(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/A.md", "A\n")

	err := f.rec.DeleteDocument(context.Background(), "cards/A.md")
	require.ErrorIs(t, err, apperr.ErrMissingIdentity)
	assert.Empty(t, f.srv.Calls())
	assert.Len(t, f.notices.Notices(), 1)

	// The guard is free again.
	assert.False(t, f.rec.Running())
	release, err := f.guard.Acquire()
	require.NoError(t, err)
	release()
}

func TestPing(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	require.NoError(t, f.rec.Ping(context.Background()))
	assert.Equal(t, []string{"Connected to Anki (protocol version 6)"}, f.notices.Messages())

	f.srv.SetDown(true)
	require.ErrorIs(t, f.rec.Ping(context.Background()), apperr.ErrConnectivity)
}

func TestScan_LedgerHistory(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.write(t, "cards/A.md", "A\n")

	rep, err := f.rec.Scan(context.Background(), "cards")
	require.NoError(t, err)

	runs, err := f.ledger.Runs(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Created)
	assert.NotNil(t, runs[0].FinishedAt)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
