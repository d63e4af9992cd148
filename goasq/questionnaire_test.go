package goasq

import (
	"sync"
	"testing"

	"github.com/Morningstar/GoASQ/messages"
)

const testTemplate = `{
  questionnaire: [
    {type: "block", id: "intro", text: "Application details", items: [
      {type: "line", id: "app_name", text: "Application name"},
      {type: "line", id: "app_team_email", text: "Team email"},
      {type: "box", id: "app_description", text: "What does it do?"}
    ]}
  ]
}`

// advisoryLog collects advisories delivered during a test.
type advisoryLog struct {
	mu       sync.Mutex
	messages []string
}

func (a *advisoryLog) record(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *advisoryLog) contains(message string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.messages {
		if m == message {
			return true
		}
	}
	return false
}

// newTestQuestionnaire builds a page session with a fake renderer, an
// in-memory store and auto-confirmed prompts.
func newTestQuestionnaire(t *testing.T, baseURL string) (*Questionnaire, *fakeRenderer, *advisoryLog) {
	t.Helper()
	renderer := newFakeRenderer()
	q := NewQuestionnaire(baseURL, renderer, NewMemoryStorage())
	q.SetConfirmFunc(func(string) bool { return true })
	advisories := &advisoryLog{}
	q.OnAdvisory(advisories.record)
	if err := q.LoadTemplate("questionnaires/webapp.json", testTemplate, ""); err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	return q, renderer, advisories
}

// TestDeriveLocalID verifies the deterministic template-path derivation.
func TestDeriveLocalID(t *testing.T) {
	cases := map[string]string{
		"questionnaires/webapp.json": "webapp",
		"webapp.json":                "webapp",
		"a/b/c/form.vsaqon":          "form",
		"noext":                      "noext",
	}
	for path, want := range cases {
		if got := DeriveLocalID(path); got != want {
			t.Errorf("DeriveLocalID(%q) = %q, want %q", path, got, want)
		}
	}
}

// TestLoadTemplateSetsIdentity verifies the local identity is derived and
// stable while the remote identity stays unassigned.
func TestLoadTemplateSetsIdentity(t *testing.T) {
	q, _, _ := newTestQuestionnaire(t, "http://unused")
	if q.LocalID() != "webapp" {
		t.Errorf("LocalID = %q, want webapp", q.LocalID())
	}
	if q.RemoteID() != "" {
		t.Errorf("RemoteID assigned before any server contact: %q", q.RemoteID())
	}
	if q.Status() != StatusUnknown {
		t.Errorf("Status = %q before any load", q.Status())
	}
}

// TestLoadTemplateRestoresStoredAnswers verifies locally stored answers are
// layered back onto the renderer on startup.
func TestLoadTemplateRestoresStoredAnswers(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewAnswerStore(storage)
	if err := store.Write("webapp", AnswerMap{
		"app_name":            "Stored",
		messages.KeyQID:       "QID-7",
		messages.KeyAppStatus: "Draft",
	}); err != nil {
		t.Fatalf("Seeding store failed: %v", err)
	}

	renderer := newFakeRenderer()
	q := NewQuestionnaire("http://unused", renderer, storage)
	if err := q.LoadTemplate("questionnaires/webapp.json", testTemplate, ""); err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}

	if renderer.Values()["app_name"] != "Stored" {
		t.Error("Stored answers did not reach the renderer")
	}
	if q.RemoteID() != "QID-7" {
		t.Errorf("RemoteID = %q, want QID-7", q.RemoteID())
	}
	if q.Status() != StatusDraft {
		t.Errorf("Status = %q, want Draft", q.Status())
	}
}

// TestLoadTemplateParseFailure verifies a bad template aborts with the
// advisory and applies no partial state.
func TestLoadTemplateParseFailure(t *testing.T) {
	renderer := newFakeRenderer()
	q := NewQuestionnaire("http://unused", renderer, NewMemoryStorage())
	advisories := &advisoryLog{}
	q.OnAdvisory(advisories.record)

	if err := q.LoadTemplate("broken.json", "{not json", ""); err == nil {
		t.Fatal("Expected a parse error")
	}
	if !advisories.contains(messages.AdvisoryTemplateFailed) {
		t.Error("Parse failure did not surface the template advisory")
	}
	if q.LocalID() != "" {
		t.Error("Parse failure still assigned an identity")
	}
}

// TestEditorChangesReachBuffer verifies the change-event stream feeds the
// change buffer with last-write-wins coalescing.
func TestEditorChangesReachBuffer(t *testing.T) {
	q, renderer, _ := newTestQuestionnaire(t, "http://unused")

	renderer.Edit(AnswerMap{"app_name": "first"})
	renderer.Edit(AnswerMap{"app_name": "second", "app_description": "desc"})

	pending := q.ChangeBuffer().Peek()
	if pending["app_name"] != "second" {
		t.Errorf("Coalescing failed: %q", pending["app_name"])
	}
	if pending["app_description"] != "desc" {
		t.Errorf("Change lost: %q", pending["app_description"])
	}
}

// TestLastWriterWins replays Scenario E: a load response and a save-draft
// acknowledgement applied out of dispatch order leave the later-completing
// merge in charge.
func TestLastWriterWins(t *testing.T) {
	q, _, _ := newTestQuestionnaire(t, "http://unused")
	q.setReadOnly(false)

	// The save-draft dispatched first but resolving second.
	q.applyLoadResponse(&LoadResponse{
		QID:     "QID-1",
		CSRF:    "t1",
		Answers: map[string]string{"field": "from-load"},
	})
	q.applyLoadResponse(&LoadResponse{
		QID:     "QID-1",
		CSRF:    "t2",
		Answers: map[string]string{"field": "from-save"},
	})

	stored, _ := q.Store().Read(q.LocalID())
	if stored["field"] != "from-save" {
		t.Errorf("Later completion did not win: %q", stored["field"])
	}
}

// TestRequiredFieldsBlockSubmit verifies an unanswered required field stops
// the operation before any network call.
func TestRequiredFieldsBlockSubmit(t *testing.T) {
	requiredTemplate := `{
	  questionnaire: [
	    {type: "line", id: "app_name", text: "Name", required: true}
	  ]
	}`
	renderer := newFakeRenderer()
	q := NewQuestionnaire("http://unreachable.invalid", renderer, NewMemoryStorage())
	q.SetConfirmFunc(func(string) bool { return true })
	advisories := &advisoryLog{}
	q.OnAdvisory(advisories.record)
	if err := q.LoadTemplate("strict.json", requiredTemplate, ""); err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	q.setReadOnly(false)

	if err := q.Submit(); err != nil {
		t.Fatalf("Expected a silent advisory no-op, got %v", err)
	}
	if !advisories.contains(messages.AdvisoryRequiredFields) {
		t.Error("Missing required-fields advisory")
	}
}
