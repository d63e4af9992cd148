package goasq

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
	"github.com/Morningstar/GoASQ/templates"
)

// Precondition violations. Operations reject with these before any network
// call is made.
var (
	ErrReadOnlySession  = errors.New("session is read-only")
	ErrNoStoredAnswers  = errors.New("no answers have been stored locally")
	ErrEmptySearchTerm  = errors.New("search term is empty")
	ErrEmptyCredentials = errors.New("username or password is empty")
)

// Questionnaire is the application context for one questionnaire page
// session. It owns the questionnaire identity and session state, and wires
// the renderer, the change buffer, the local answer store and the backend
// client together. Construct one at startup and pass it by reference; there
// are no package-level globals.
type Questionnaire struct {
	mu sync.Mutex

	client   *Client
	renderer Renderer
	store    *AnswerStore
	buffer   *ChangeBuffer
	template *templates.Template

	// Identity. localID derives from the template path and keys all local
	// persistence; remoteID is whatever the server last reported.
	localID  string
	remoteID string

	// Session state.
	status     WorkflowStatus
	readOnly   bool
	authorized bool
	username   string
	csrfToken  string
	actions    ActionSet

	exportDir  string
	exportPath string

	autosaveInterval time.Duration
	autosaveStop     chan struct{}

	advisory func(message string)
	confirm  func(prompt string) bool
}

// NewQuestionnaire creates a page session talking to the backend at baseURL,
// rendering through renderer and persisting answers in storage. The session
// starts read-only with status Unknown; a successful login or template load
// flips it editable.
func NewQuestionnaire(baseURL string, renderer Renderer, storage Storage) *Questionnaire {
	return &Questionnaire{
		client:           NewClient(baseURL),
		renderer:         renderer,
		store:            NewAnswerStore(storage),
		buffer:           NewChangeBuffer(),
		status:           StatusUnknown,
		readOnly:         true,
		autosaveInterval: DefaultAutosaveInterval,
		confirm:          confirmWithPrompt,
	}
}

// SetAutosaveInterval overrides the flush interval. Takes effect the next
// time the autosave loop is started.
func (q *Questionnaire) SetAutosaveInterval(interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autosaveInterval = interval
}

// SetTimeout sets the backend request timeout.
func (q *Questionnaire) SetTimeout(timeout time.Duration) {
	q.client.SetTimeout(timeout)
}

// SetExportDir sets where the download-answers artifact is written.
func (q *Questionnaire) SetExportDir(dir string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exportDir = dir
}

// OnAdvisory registers the transient banner callback. Advisories are the
// toast messages of the original page: fixed text, fire and forget.
func (q *Questionnaire) OnAdvisory(callback func(message string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.advisory = callback
}

// SetConfirmFunc replaces the blocking confirmation prompt used before
// destructive actions. The default prompts on the terminal.
func (q *Questionnaire) SetConfirmFunc(confirm func(prompt string) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.confirm = confirm
}

func confirmWithPrompt(prompt string) bool {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(prompt).Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		log.Warnf("Failed to run confirmation prompt: %v", err)
		return false
	}
	return confirmed
}

// notify delivers an advisory outside the context lock.
func (q *Questionnaire) notify(message string) {
	if message == "" {
		return
	}
	q.mu.Lock()
	callback := q.advisory
	q.mu.Unlock()
	if callback != nil {
		callback(message)
	} else {
		log.Info(message)
	}
}

func (q *Questionnaire) confirmAction(prompt string) bool {
	q.mu.Lock()
	confirm := q.confirm
	q.mu.Unlock()
	if confirm == nil {
		return true
	}
	return confirm(prompt)
}

// DeriveLocalID turns a template path into the deterministic local identity:
// basename, extension stripped, path separators folded to underscores. The
// same template always yields the same id across sessions.
func DeriveLocalID(templatePath string) string {
	base := filepath.Base(templatePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "/", "_")
	return strings.ReplaceAll(base, string(filepath.Separator), "_")
}

// LoadTemplateFile reads a questionnaire template (and optional extension)
// from disk and installs it.
func (q *Questionnaire) LoadTemplateFile(templatePath, extensionPath string) error {
	text, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %v", err)
	}
	extensionText := ""
	if extensionPath != "" {
		ext, err := os.ReadFile(extensionPath)
		if err != nil {
			return fmt.Errorf("failed to read template extension: %v", err)
		}
		extensionText = string(ext)
	}
	return q.LoadTemplate(templatePath, string(text), extensionText)
}

// LoadTemplate parses template text, derives the local identity from the
// template path, loads any locally stored answers into the renderer and
// hooks the change-event stream into the change buffer. Parse failure
// aborts with an advisory and applies no partial state.
func (q *Questionnaire) LoadTemplate(templatePath, text, extensionText string) error {
	tmpl, err := templates.Parse(text)
	if err != nil {
		q.notify(messages.AdvisoryTemplateFailed)
		return err
	}
	if extensionText != "" {
		extension, err := templates.Parse(extensionText)
		if err != nil {
			q.notify(messages.AdvisoryTemplateFailed)
			return err
		}
		tmpl = templates.MergeExtension(tmpl, extension)
	}

	q.mu.Lock()
	q.template = tmpl
	q.localID = DeriveLocalID(templatePath)
	localID := q.localID
	readOnly := q.readOnly
	q.mu.Unlock()

	q.renderer.SetTemplate(tmpl)
	q.renderer.SetReadOnly(readOnly)
	q.renderer.Listen(func(event ChangeEvent) {
		q.buffer.Add(event.ChangedValues)
	})

	// Layer locally stored answers back onto the form.
	if stored, ok := q.store.Read(localID); ok {
		q.renderer.SetValues(stored)
		q.applyReservedFields(stored)
		q.mu.Lock()
		q.refreshExportLocked()
		q.mu.Unlock()
	}

	q.recomputeActions()
	log.Infof("Loaded questionnaire template %s as %s", templatePath, localID)
	return nil
}

// Template returns the installed template, or nil before LoadTemplate.
func (q *Questionnaire) Template() *templates.Template {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.template
}

// LocalID returns the local persistence identity.
func (q *Questionnaire) LocalID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.localID
}

// RemoteID returns the server-assigned questionnaire identity.
func (q *Questionnaire) RemoteID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remoteID
}

// Status returns the current workflow status.
func (q *Questionnaire) Status() WorkflowStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// IsReadOnly reports whether the session is read-only.
func (q *Questionnaire) IsReadOnly() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readOnly
}

// IsAuthorized reports whether the logged-in user may review and approve.
func (q *Questionnaire) IsAuthorized() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.authorized
}

// Username returns the logged-in username, empty when signed out.
func (q *Questionnaire) Username() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.username
}

// Actions returns the last computed permitted-action set.
func (q *Questionnaire) Actions() ActionSet {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.actions
}

// ChangeBuffer exposes the pending-edit buffer.
func (q *Questionnaire) ChangeBuffer() *ChangeBuffer {
	return q.buffer
}

// Store exposes the local answer store.
func (q *Questionnaire) Store() *AnswerStore {
	return q.store
}

// setReadOnly flips the session mode, propagates it to the renderer and
// recomputes the permitted actions. Read-only is entered on every transport
// failure and left only through a successful login.
func (q *Questionnaire) setReadOnly(readOnly bool) {
	q.mu.Lock()
	q.readOnly = readOnly
	if readOnly {
		q.username = ""
	}
	q.mu.Unlock()

	q.renderer.SetReadOnly(readOnly)
	q.recomputeActions()
}

// recomputeActions projects status, read-only flag and authorization onto
// the permitted-action set. It is recomputed wholesale after every
// status-affecting event, never patched incrementally.
func (q *Questionnaire) recomputeActions() {
	q.mu.Lock()
	q.actions = PermittedActions(q.status, q.readOnly, q.authorized)
	newerRevision := q.actions.NewerRevision
	q.mu.Unlock()

	if newerRevision {
		q.notify(messages.AdvisoryNewerRevision)
	}
}

// applyReservedFields applies the metadata side effects of a merged answer
// mapping: a qid key updates the remote identity (and is persisted under
// the local identity), an app_status key updates the workflow status.
// Unknown keys pass through untouched.
func (q *Questionnaire) applyReservedFields(answers AnswerMap) {
	if qid, ok := answers[messages.KeyQID]; ok && qid != "" {
		q.mu.Lock()
		q.remoteID = qid
		localID := q.localID
		q.mu.Unlock()
		if err := q.store.Write(localID, AnswerMap{messages.KeyQID: qid}); err != nil {
			log.Warnf("Failed to persist questionnaire id: %v", err)
		}
	}
	if status, ok := answers[messages.KeyAppStatus]; ok {
		q.mu.Lock()
		q.status = ParseWorkflowStatus(status)
		q.mu.Unlock()
	}
	q.recomputeActions()
}

// rotateToken adopts the anti-forgery token carried by a response. Every
// response rotates it, regardless of operation.
func (q *Questionnaire) rotateToken(csrf string) {
	if csrf == "" {
		return
	}
	q.mu.Lock()
	q.csrfToken = csrf
	q.mu.Unlock()
}

func (q *Questionnaire) currentToken() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.csrfToken
}

// checkRequiredFields verifies every required template field has a stored
// answer. Missing answers surface the fixed advisory and block the caller.
func (q *Questionnaire) checkRequiredFields() bool {
	q.mu.Lock()
	tmpl := q.template
	localID := q.localID
	q.mu.Unlock()
	if tmpl == nil {
		return true
	}
	stored, _ := q.store.Read(localID)
	pending := q.buffer.Peek()
	for _, id := range tmpl.RequiredFieldIDs() {
		if stored[id] == "" && pending[id] == "" {
			q.notify(messages.AdvisoryRequiredFields)
			return false
		}
	}
	return true
}
