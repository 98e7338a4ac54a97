// Package ankitest provides an in-memory AnkiConnect server for tests.
package ankitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
)

// Note is a note held by the fake server.
type Note struct {
	ID    int64
	Deck  string
	Model string
	Front string
	Back  string
	Tags  []string
}

// Server is a fake AnkiConnect endpoint. It understands the actions the
// client issues and keeps decks, notes and media in memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	notes    map[int64]*Note
	decks    map[string]bool
	media    map[string]string
	calls    []string
	down     bool
	failures map[string]string
	raw      map[string]json.RawMessage
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:   1700000000000,
		notes:    make(map[int64]*Note),
		decks:    map[string]bool{"Default": true},
		media:    make(map[string]string),
		failures: make(map[string]string),
		raw:      make(map[string]json.RawMessage),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// SetDown makes every request fail with 503 Service Unavailable.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Fail makes action answer with msg in the envelope's error field.
// An empty msg clears the failure.
func (s *Server) Fail(action, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		delete(s.failures, action)
		return
	}
	s.failures[action] = msg
}

// Raw makes action answer with result verbatim.
func (s *Server) Raw(action, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[action] = json.RawMessage(result)
}

// AddNote stores a note directly, bypassing the protocol, and returns its id.
func (s *Server) AddNote(deck, front, back string, tags ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(deck, "Basic", front, back, tags)
}

// SetTags replaces the tags of note id, as a reviewer would.
func (s *Server) SetTags(id int64, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; ok {
		n.Tags = append([]string{}, tags...)
	}
}

// SetBack replaces the Back field of note id.
func (s *Server) SetBack(id int64, back string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notes[id]; ok {
		n.Back = back
	}
}

// RemoveNote deletes note id, as if it had been deleted in the app.
func (s *Server) RemoveNote(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
}

// Note returns a copy of note id.
func (s *Server) Note(id int64) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, false
	}
	return *n, true
}

// NoteCount returns the number of stored notes.
func (s *Server) NoteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// HasDeck reports whether deck exists.
func (s *Server) HasDeck(deck string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decks[deck]
}

// Media returns the uploaded files keyed by filename.
func (s *Server) Media() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.media))
	for k, v := range s.media {
		out[k] = v
	}
	return out
}

// Calls returns the top-level actions received, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

// CallCount returns how often action was received at top level.
func (s *Server) CallCount(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == action {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

type request struct {
	Action  string          `json:"action"`
	Version int             `json:"version"`
	Params  json.RawMessage `json:"params"`
}

type envelope struct {
	Result any     `json:"result"`
	Error  *string `json:"error"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.calls = append(s.calls, req.Action)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.dispatch(req))
}

func (s *Server) dispatch(req request) envelope {
	if msg, ok := s.failures[req.Action]; ok {
		return envelope{Error: &msg}
	}
	if raw, ok := s.raw[req.Action]; ok {
		return envelope{Result: raw}
	}
	result, err := s.apply(req.Action, req.Params)
	if err != nil {
		msg := err.Error()
		return envelope{Error: &msg}
	}
	return envelope{Result: result}
}

func (s *Server) apply(action string, params json.RawMessage) (any, error) {
	switch action {
	case "version":
		return 6, nil

	case "createDeck":
		var p struct {
			Deck string `json:"deck"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		s.decks[p.Deck] = true
		return len(s.decks), nil

	case "addNote":
		var p struct {
			Note struct {
				DeckName  string            `json:"deckName"`
				ModelName string            `json:"modelName"`
				Fields    map[string]string `json:"fields"`
				Tags      []string          `json:"tags"`
			} `json:"note"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if !s.decks[p.Note.DeckName] {
			return nil, fmt.Errorf("deck was not found: %s", p.Note.DeckName)
		}
		for _, n := range s.notes {
			if n.Deck == p.Note.DeckName && n.Front == p.Note.Fields["Front"] {
				return nil, fmt.Errorf("cannot create note because it is a duplicate")
			}
		}
		return s.add(p.Note.DeckName, p.Note.ModelName, p.Note.Fields["Front"], p.Note.Fields["Back"], p.Note.Tags), nil

	case "updateNote":
		var p struct {
			Note struct {
				ID     int64             `json:"id"`
				Fields map[string]string `json:"fields"`
			} `json:"note"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		n, ok := s.notes[p.Note.ID]
		if !ok {
			return nil, fmt.Errorf("Note was not found: %d", p.Note.ID)
		}
		if v, ok := p.Note.Fields["Front"]; ok {
			n.Front = v
		}
		if v, ok := p.Note.Fields["Back"]; ok {
			n.Back = v
		}
		return nil, nil

	case "deleteNotes":
		var p struct {
			Notes []int64 `json:"notes"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		for _, id := range p.Notes {
			delete(s.notes, id)
		}
		return nil, nil

	case "findNotes":
		var p struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		deck, ok := parseDeckQuery(p.Query)
		if !ok {
			return nil, fmt.Errorf("unsupported query: %s", p.Query)
		}
		ids := []int64{}
		for id, n := range s.notes {
			if n.Deck == deck || strings.HasPrefix(n.Deck, deck+"::") {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids, nil

	case "notesInfo":
		var p struct {
			Notes []int64 `json:"notes"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(p.Notes))
		for _, id := range p.Notes {
			n, ok := s.notes[id]
			if !ok {
				out = append(out, map[string]any{})
				continue
			}
			out = append(out, map[string]any{
				"noteId":    n.ID,
				"modelName": n.Model,
				"tags":      append([]string{}, n.Tags...),
				"fields": map[string]any{
					"Front": map[string]any{"value": n.Front, "order": 0},
					"Back":  map[string]any{"value": n.Back, "order": 1},
				},
			})
		}
		return out, nil

	case "storeMediaFile":
		var p struct {
			Filename string `json:"filename"`
			Path     string `json:"path"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if _, err := os.Stat(p.Path); err != nil {
			return nil, fmt.Errorf("file not found: %s", p.Path)
		}
		s.media[p.Filename] = p.Path
		return p.Filename, nil

	case "multi":
		var p struct {
			Actions []request `json:"actions"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		out := make([]envelope, len(p.Actions))
		for i, a := range p.Actions {
			out[i] = s.dispatch(a)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported action")
}

func (s *Server) add(deck, model, front, back string, tags []string) int64 {
	s.nextID++
	if tags == nil {
		tags = []string{}
	}
	s.notes[s.nextID] = &Note{
		ID:    s.nextID,
		Deck:  deck,
		Model: model,
		Front: front,
		Back:  back,
		Tags:  append([]string{}, tags...),
	}
	s.decks[deck] = true
	return s.nextID
}

// parseDeckQuery reverses the client's deck:"..." escaping.
func parseDeckQuery(q string) (string, bool) {
	if !strings.HasPrefix(q, `deck:"`) || !strings.HasSuffix(q, `"`) || len(q) < len(`deck:""`) {
		return "", false
	}
	inner := q[len(`deck:"`) : len(q)-1]
	var b strings.Builder
	escaped := false
	for _, r := range inner {
		if !escaped && r == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String(), true
}
