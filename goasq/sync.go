package goasq

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
)

// Sync controller: the request/response cycles against the backend. Every
// operation follows the same shape. Preconditions reject before any network
// call. A transport failure forces the session read-only, surfaces the
// operation's fixed advisory, and leaves the answer mapping, the identity
// and the workflow status untouched. A success rotates the anti-forgery
// token, applies the response through the reconciler and recomputes the
// permitted actions. Operations may interleave with the autosave timer;
// every merge is a complete read-modify-write, so the later completion
// wins.

// failOp handles a transport failure uniformly.
func (q *Questionnaire) failOp(op messages.Operation, err error) error {
	log.Warnf("%s failed: %v", op, err)
	q.setReadOnly(true)
	q.notify(messages.AdvisoryFor(op))
	return err
}

// Submit sends the locally stored answers to the backend and, on success,
// exports them and resets the working identity for a fresh submission.
func (q *Questionnaire) Submit() error {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return ErrReadOnlySession
	}
	if !q.checkRequiredFields() {
		return nil
	}

	q.mu.Lock()
	localID := q.localID
	remoteID := q.remoteID
	token := q.csrfToken
	q.mu.Unlock()

	raw, ok := q.store.ReadRaw(localID)
	if !ok {
		return ErrNoStoredAnswers
	}
	if !q.confirmAction(messages.ConfirmSubmit) {
		return nil
	}

	resp, err := q.client.Save(messages.OpSubmit, remoteID, token, raw)
	if err != nil {
		return q.failOp(messages.OpSubmit, err)
	}

	q.rotateToken(resp.CSRF)
	// Record the identity the server filed the answers under.
	if err := q.store.Write(localID, AnswerMap{messages.KeyQID: resp.QIDSaved}); err != nil {
		log.Warnf("Failed to persist saved questionnaire id: %v", err)
	}
	q.notify(resp.Msg)

	q.mu.Lock()
	if resp.QIDSaved != remoteID {
		q.remoteID = resp.QIDSaved
	}
	// The export artifact must exist before the reset wipes the store.
	q.refreshExportLocked()

	// A successful submission always produces a new working identity. The
	// exported file stays behind as the user's copy; only the tracking of
	// it is dropped.
	q.store.Clear(q.localID)
	q.buffer.Reset()
	q.exportPath = ""
	q.localID = messages.NotGenerated
	q.remoteID = resp.QIDNew
	q.status = StatusUnknown
	q.mu.Unlock()

	q.recomputeActions()
	log.Infof("Submitted questionnaire, new working identity %s", resp.QIDNew)
	return nil
}

// SaveDraft saves the locally stored answers at the backend without
// resetting the working identity.
func (q *Questionnaire) SaveDraft() error {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return ErrReadOnlySession
	}
	if !q.checkRequiredFields() {
		return nil
	}

	q.mu.Lock()
	localID := q.localID
	remoteID := q.remoteID
	token := q.csrfToken
	q.mu.Unlock()

	raw, ok := q.store.ReadRaw(localID)
	if !ok {
		return ErrNoStoredAnswers
	}

	resp, err := q.client.Save(messages.OpSaveDraft, remoteID, token, raw)
	if err != nil {
		return q.failOp(messages.OpSaveDraft, err)
	}

	q.rotateToken(resp.CSRF)
	if err := q.store.Write(localID, AnswerMap{messages.KeyQID: resp.QIDSaved}); err != nil {
		log.Warnf("Failed to persist saved questionnaire id: %v", err)
	}
	q.mu.Lock()
	if resp.QIDSaved != remoteID {
		q.remoteID = resp.QIDSaved
	}
	q.refreshExportLocked()
	q.mu.Unlock()

	q.notify(resp.Msg)
	q.recomputeActions()
	return nil
}

// LoadAnswers fetches saved answers matching the search term and layers
// them over the current ones.
func (q *Questionnaire) LoadAnswers(searchTerm string) error {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return ErrReadOnlySession
	}
	if strings.TrimSpace(searchTerm) == "" {
		return ErrEmptySearchTerm
	}

	resp, err := q.client.Load(searchTerm, q.currentToken())
	if err != nil {
		return q.failOp(messages.OpLoadAnswers, err)
	}
	q.applyLoadResponse(resp)
	return nil
}

// LoadAnswersByID fetches saved answers for an exact questionnaire id
// through the GET form of the load endpoint, discarding whatever is stored
// locally first. This is the page-URL entry point.
func (q *Questionnaire) LoadAnswersByID(id string) error {
	q.mu.Lock()
	q.store.Clear(q.localID)
	q.buffer.Reset()
	q.removeExportLocked()
	q.mu.Unlock()

	resp, err := q.client.LoadByID(id)
	if err != nil {
		return q.failOp(messages.OpLoadAnswers, err)
	}
	q.applyLoadResponse(resp)
	return nil
}

func (q *Questionnaire) applyLoadResponse(resp *LoadResponse) {
	q.rotateToken(resp.CSRF)

	answers := AnswerMap(resp.Answers)
	q.mu.Lock()
	q.remoteID = resp.QID
	localID := q.localID
	q.mu.Unlock()

	q.renderer.SetValues(answers)
	if err := q.store.Write(localID, answers); err != nil {
		log.Warnf("Failed to store loaded answers: %v", err)
	}
	q.applyReservedFields(answers)

	q.mu.Lock()
	q.refreshExportLocked()
	q.mu.Unlock()
	log.Infof("Loaded %d answers for %s", len(answers), resp.QID)
}

// LoadDiff fetches the answers last saved at the backend and reports which
// locally cached fields differ. The result drives a highlight list only; it
// is never persisted. An unmodified questionnaire surfaces the explicit
// no-op notice.
func (q *Questionnaire) LoadDiff() (DiffResult, error) {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return DiffResult{}, ErrReadOnlySession
	}

	q.mu.Lock()
	localID := q.localID
	remoteID := q.remoteID
	token := q.csrfToken
	q.mu.Unlock()

	resp, err := q.client.LoadLastSubmitted(remoteID, token)
	if err != nil {
		return DiffResult{}, q.failOp(messages.OpLoadDiff, err)
	}
	q.rotateToken(resp.CSRF)

	current, _ := q.store.Read(localID)
	diff := ComputeDiff(current, AnswerMap(resp.Answers))
	if diff.Unmodified {
		q.notify(messages.AdvisoryUnmodified)
	}
	return diff, nil
}

// SubmitReview requests the In Review status for the current questionnaire.
func (q *Questionnaire) SubmitReview() error {
	return q.changeStatus(messages.StatusCodeReview, messages.ConfirmReview, StatusInReview)
}

// Approve requests the Approved status for the current questionnaire.
func (q *Questionnaire) Approve() error {
	return q.changeStatus(messages.StatusCodeApprove, messages.ConfirmApprove, StatusApproved)
}

func (q *Questionnaire) changeStatus(code, prompt string, acknowledged WorkflowStatus) error {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return ErrReadOnlySession
	}
	if !q.confirmAction(prompt) {
		return nil
	}

	q.mu.Lock()
	localID := q.localID
	remoteID := q.remoteID
	token := q.csrfToken
	q.mu.Unlock()

	resp, err := q.client.ChangeStatus(remoteID, token, code)
	if err != nil {
		return q.failOp(messages.OpChangeStatus, err)
	}
	q.rotateToken(resp.CSRF)

	q.mu.Lock()
	q.status = acknowledged
	q.mu.Unlock()
	if err := q.store.Write(localID, AnswerMap{messages.KeyAppStatus: string(acknowledged)}); err != nil {
		log.Warnf("Failed to persist status: %v", err)
	}

	q.notify("Status saved!")
	q.recomputeActions()
	return nil
}

// Login authenticates against the backend. Success leaves read-only mode;
// rejected credentials and transport failures both surface the fixed login
// advisory without touching cached state.
func (q *Questionnaire) Login(username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return ErrEmptyCredentials
	}

	resp, err := q.client.Login(username, password, q.currentToken())
	if err != nil {
		log.Warnf("%s failed: %v", messages.OpLogin, err)
		q.notify(messages.AdvisoryLoginFailed)
		return err
	}
	q.rotateToken(resp.CSRF)

	if resp.U == "" {
		q.notify(messages.AdvisoryLoginFailed)
		return nil
	}

	q.mu.Lock()
	q.username = resp.U
	q.authorized = resp.A == "True"
	q.mu.Unlock()
	q.setReadOnly(false)
	log.Infof("Logged in as %s", resp.U)
	return nil
}

// Logout ends the backend session. The client session always becomes
// read-only afterwards, whether or not the request succeeded.
func (q *Questionnaire) Logout() error {
	resp, err := q.client.Logout(q.currentToken())
	if err == nil {
		q.rotateToken(resp.CSRF)
	} else {
		log.Warnf("%s failed: %v", messages.OpLogout, err)
	}

	q.mu.Lock()
	q.authorized = false
	q.mu.Unlock()
	q.setReadOnly(true)
	q.notify(messages.AdvisorySignedOut)
	return err
}

// ClearAnswers discards all locally stored answers after confirmation and
// resets the identity to the not-generated sentinel.
func (q *Questionnaire) ClearAnswers() error {
	if !q.confirmAction(messages.ConfirmClearAnswers) {
		return nil
	}

	q.mu.Lock()
	q.store.Clear(q.localID)
	q.buffer.Reset()
	q.removeExportLocked()
	q.localID = messages.NotGenerated
	q.remoteID = messages.NotGenerated
	q.status = StatusUnknown
	q.mu.Unlock()

	q.recomputeActions()
	log.Info("Cleared all locally stored answers")
	return nil
}
