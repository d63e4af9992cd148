package goasq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
)

// The export artifact is the downloadable copy of the locally stored
// answers. It is refreshed after every flush and every merge that changes
// the stored blob, and removed when nothing is stored. Its name derives
// from the remote identity plus either the local identity or, once both are
// answered, the application name and team email.

// exportFileName derives the artifact file name from the current identity
// and stored answers.
func exportFileName(remoteID, localID string, stored AnswerMap) string {
	qid := localID
	appName := stored[messages.KeyAppName]
	teamEmail := stored[messages.KeyTeamEmail]
	if appName != "" && teamEmail != "" {
		qid = appName + "_" + teamEmail + ".json"
		if idx := strings.LastIndex(qid, ","); idx >= 0 {
			qid = qid[:idx]
		}
		qid = strings.ReplaceAll(qid, "/", "_")
	}
	return "answers_" + remoteID + "_" + qid
}

// ExportPath returns the current artifact path, empty when none exists.
func (q *Questionnaire) ExportPath() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.exportPath
}

// RefreshExport rewrites the export artifact from the stored answers.
func (q *Questionnaire) RefreshExport() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refreshExportLocked()
}

func (q *Questionnaire) refreshExportLocked() {
	if q.exportDir == "" {
		return
	}
	raw, ok := q.store.ReadRaw(q.localID)
	if !ok {
		q.removeExportLocked()
		return
	}
	stored, _ := q.store.Read(q.localID)
	path := filepath.Join(q.exportDir, exportFileName(q.remoteID, q.localID, stored))
	if q.exportPath != "" && q.exportPath != path {
		q.removeExportLocked()
	}
	if err := os.MkdirAll(q.exportDir, 0755); err != nil {
		log.Warnf("Failed to create export directory: %v", err)
		return
	}
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		log.Warnf("Failed to write export artifact: %v", err)
		return
	}
	q.exportPath = path
	log.Debugf("Refreshed export artifact: %s", path)
}

func (q *Questionnaire) removeExportLocked() {
	if q.exportPath == "" {
		return
	}
	if err := os.Remove(q.exportPath); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove export artifact: %v", err)
	}
	q.exportPath = ""
}

// ImportAnswersFile reads a user-selected answers file, parses it as JSON
// and layers it onto the form. Files carrying neither recognized version
// marker are stamped with the oldest one before the merge; no further
// validation happens at this layer. Parse failure aborts with an advisory
// and applies no partial state.
func (q *Questionnaire) ImportAnswersFile(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read answers file: %v", err)
	}
	return q.ImportAnswers(string(text))
}

// ImportAnswers imports answers from raw file text.
func (q *Questionnaire) ImportAnswers(text string) error {
	answers := AnswerMap{}
	if err := json.Unmarshal([]byte(text), &answers); err != nil {
		q.notify("The answers file does not appear to be valid JSON.")
		return fmt.Errorf("failed to parse answers file: %v", err)
	}
	stamped := StampVersion(answers)

	q.renderer.SetValues(stamped)
	// Imported values take the same path as editor input so the next flush
	// persists them.
	q.buffer.Add(stamped)
	q.applyReservedFields(stamped)

	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
	}
	log.Infof("Imported %d answers from file", len(stamped))
	return nil
}
