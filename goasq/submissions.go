package goasq

import (
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
)

// Submissions browser: a listing/filter view over submission metadata the
// sync controller fetches. Nothing here is persisted.

// SubmissionFilter is the checkbox state of the submissions listing.
type SubmissionFilter struct {
	Approved  bool
	Draft     bool
	InReview  bool
	Submitted bool
}

// DefaultSubmissionFilter is the state the listing opens with: submitted
// only.
func DefaultSubmissionFilter() SubmissionFilter {
	return SubmissionFilter{Submitted: true}
}

// Flags encodes the filter as the backend's type-flags string, always in
// a, d, r, s order.
func (f SubmissionFilter) Flags() string {
	var b strings.Builder
	if f.Approved {
		b.WriteByte('a')
	}
	if f.Draft {
		b.WriteByte('d')
	}
	if f.InReview {
		b.WriteByte('r')
	}
	if f.Submitted {
		b.WriteByte('s')
	}
	return b.String()
}

// revisionsFlags is what the revisions listing always requests.
const revisionsFlags = "ars"

// SubmissionRow is one submission's metadata with cells ordered by sorted
// column name, ready for tabular display.
type SubmissionRow struct {
	Columns []string
	Cells   []string
}

// newSubmissionRow orders a row mapping into a display row.
func newSubmissionRow(row map[string]string) SubmissionRow {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	cells := make([]string, len(columns))
	for i, column := range columns {
		cells[i] = row[column]
	}
	return SubmissionRow{Columns: columns, Cells: cells}
}

// FilterRows returns the rows with at least one cell containing the search
// text, case-insensitively. Empty search text keeps every row.
func FilterRows(rows []SubmissionRow, search string) []SubmissionRow {
	if search == "" {
		return rows
	}
	needle := strings.ToUpper(search)
	var matched []SubmissionRow
	for _, row := range rows {
		for _, cell := range row.Cells {
			if strings.Contains(strings.ToUpper(cell), needle) {
				matched = append(matched, row)
				break
			}
		}
	}
	return matched
}

// FetchSubmissions loads submission metadata for the given filter.
func (q *Questionnaire) FetchSubmissions(filter SubmissionFilter) ([]SubmissionRow, error) {
	return q.loadSubmissions(filter.Flags(), "")
}

// LoadRevisions loads the current and all previous revisions of this
// questionnaire's answers. The revisions listing always requests the fixed
// approved/in-review/submitted flags.
func (q *Questionnaire) LoadRevisions() ([]SubmissionRow, error) {
	q.mu.Lock()
	remoteID := q.remoteID
	q.mu.Unlock()
	return q.loadSubmissions(revisionsFlags, remoteID)
}

func (q *Questionnaire) loadSubmissions(typeFlags, id string) ([]SubmissionRow, error) {
	if q.IsReadOnly() {
		q.notify(messages.AdvisoryReadOnly)
		return nil, ErrReadOnlySession
	}

	resp, err := q.client.LoadSubmissions(typeFlags, id, q.currentToken())
	if err != nil {
		return nil, q.failOp(messages.OpLoadSubmitted, err)
	}
	q.rotateToken(resp.CSRF)

	rows := make([]SubmissionRow, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		rows = append(rows, newSubmissionRow(row))
	}
	log.Debugf("Loaded %d submission rows for flags %q", len(rows), typeFlags)
	return rows, nil
}
