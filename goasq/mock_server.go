package goasq

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Morningstar/GoASQ/messages"
)

// ReceivedRequest captures one request the mock backend handled, for test
// assertions.
type ReceivedRequest struct {
	Path      string
	Form      map[string]string
	Timestamp time.Time
}

// MockSubmission is one questionnaire stored by the mock backend.
type MockSubmission struct {
	QID     string
	Answers AnswerMap
	Status  WorkflowStatus
}

type mockUser struct {
	password   string
	authorized bool
}

// MockServer simulates a GoASQ backend for testing. It speaks the same
// form-encoded/JSON protocol as the real server: csrf rotation on every
// response, qid assignment on save, status filtering on the submissions
// listing.
type MockServer struct {
	mu          sync.Mutex
	server      *httptest.Server
	users       map[string]mockUser
	submissions map[string]*MockSubmission
	revisions   map[string][]*MockSubmission
	csrf        string
	failPaths   map[string]bool
	received    []ReceivedRequest
}

// NewMockServer starts a mock backend on an ephemeral port.
func NewMockServer() *MockServer {
	gin.SetMode(gin.TestMode)
	m := &MockServer{
		users:       make(map[string]mockUser),
		submissions: make(map[string]*MockSubmission),
		revisions:   make(map[string][]*MockSubmission),
		csrf:        uuid.NewString(),
		failPaths:   make(map[string]bool),
	}

	engine := gin.New()
	engine.POST(messages.PathSubmit, m.handleSave(StatusSubmitted))
	engine.POST(messages.PathSaveDraft, m.handleSave(StatusDraft))
	engine.POST(messages.PathLoadOne, m.handleLoadOne)
	engine.GET(messages.PathLoadOne, m.handleLoadOne)
	engine.POST(messages.PathDiff, m.handleDiff)
	engine.POST(messages.PathStatus, m.handleStatus)
	engine.POST(messages.PathLogin, m.handleLogin)
	engine.POST(messages.PathLogout, m.handleLogout)
	engine.POST(messages.PathSubmissions, m.handleSubmissions)

	m.server = httptest.NewServer(engine)
	return m
}

// URL returns the backend base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts the backend down.
func (m *MockServer) Close() {
	m.server.Close()
}

// AddUser registers a user the login endpoint accepts.
func (m *MockServer) AddUser(username, password string, authorized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[username] = mockUser{password: password, authorized: authorized}
}

// AddSubmission seeds a stored questionnaire.
func (m *MockServer) AddSubmission(qid string, answers AnswerMap, status WorkflowStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &MockSubmission{QID: qid, Answers: answers.Clone(), Status: status}
	m.submissions[qid] = sub
	m.revisions[qid] = append(m.revisions[qid], sub)
}

// Submission returns the stored questionnaire for qid, or nil.
func (m *MockServer) Submission(qid string) *MockSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submissions[qid]
}

// FailPath makes every request to path return HTTP 500 until cleared.
func (m *MockServer) FailPath(path string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPaths[path] = fail
}

// CSRF returns the token the next response will carry.
func (m *MockServer) CSRF() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.csrf
}

// Received returns every request handled so far.
func (m *MockServer) Received() []ReceivedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReceivedRequest{}, m.received...)
}

// record captures the request and reports whether it should fail. The csrf
// token rotates on every handled request, matching the real backend.
func (m *MockServer) record(c *gin.Context) (token string, fail bool) {
	_ = c.Request.ParseForm()
	form := make(map[string]string)
	for key, values := range c.Request.Form {
		if len(values) > 0 {
			form[key] = values[0]
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, ReceivedRequest{
		Path:      c.Request.URL.Path,
		Form:      form,
		Timestamp: time.Now(),
	})
	if m.failPaths[c.Request.URL.Path] {
		return "", true
	}
	m.csrf = uuid.NewString()
	return m.csrf, false
}

func (m *MockServer) handleSave(status WorkflowStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, fail := m.record(c)
		if fail {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
			return
		}

		id := c.PostForm(messages.FieldID)
		answersJSON := c.PostForm(messages.FieldAnswers)
		answers := AnswerMap{}
		if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "answers are not valid JSON"})
			return
		}

		m.mu.Lock()
		qid := id
		if qid == "" || qid == messages.NotGenerated {
			qid = uuid.NewString()
		}
		sub := &MockSubmission{QID: qid, Answers: answers, Status: status}
		m.submissions[qid] = sub
		m.revisions[qid] = append(m.revisions[qid], sub)

		qidNew := qid
		if status == StatusSubmitted {
			// A submission always hands the client a fresh working id.
			qidNew = uuid.NewString()
		}
		m.mu.Unlock()

		msg := "This questionnaire (" + qid + ") has been saved as draft."
		if status == StatusSubmitted {
			msg = "Congratulations! This questionnaire (" + qid + ") has been submitted."
		}
		c.JSON(http.StatusOK, gin.H{
			"csrf":      token,
			"msg":       msg,
			"qid_saved": qid,
			"qid_new":   qidNew,
		})
	}
}

func (m *MockServer) lookup(term string) *MockSubmission {
	if sub, ok := m.submissions[term]; ok {
		return sub
	}
	// Wildcard search over answer values, like the real backend's search.
	for _, sub := range m.submissions {
		for _, value := range sub.Answers {
			if value == term {
				return sub
			}
		}
	}
	return nil
}

func (m *MockServer) handleLoadOne(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}

	term := c.PostForm(messages.FieldID)
	if term == "" {
		term = c.Query(messages.FieldID)
	}

	m.mu.Lock()
	sub := m.lookup(term)
	m.mu.Unlock()
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"csrf": token, "error": "no such questionnaire"})
		return
	}

	answers := sub.Answers.Clone()
	answers[messages.KeyAppStatus] = string(sub.Status)
	c.JSON(http.StatusOK, gin.H{
		"csrf":    token,
		"qid":     sub.QID,
		"answers": answers,
	})
}

func (m *MockServer) handleDiff(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}

	qid := c.PostForm(messages.FieldID)
	m.mu.Lock()
	sub := m.submissions[qid]
	m.mu.Unlock()
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"csrf": token, "error": "no such questionnaire"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"csrf":    token,
		"qid":     sub.QID,
		"answers": sub.Answers,
	})
}

func (m *MockServer) handleStatus(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}

	qid := c.PostForm(messages.FieldID)
	code := c.PostForm(messages.FieldStatus)

	m.mu.Lock()
	if sub, ok := m.submissions[qid]; ok {
		switch code {
		case messages.StatusCodeReview:
			sub.Status = StatusInReview
		case messages.StatusCodeApprove:
			sub.Status = StatusApproved
		}
	}
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"csrf": token})
}

func (m *MockServer) handleLogin(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}

	username := c.PostForm(messages.FieldUser)
	password := c.PostForm(messages.FieldPassword)

	m.mu.Lock()
	user, ok := m.users[username]
	m.mu.Unlock()
	if !ok || user.password != password {
		c.JSON(http.StatusOK, gin.H{"csrf": token, "u": ""})
		return
	}

	authorized := "False"
	if user.authorized {
		authorized = "True"
	}
	c.JSON(http.StatusOK, gin.H{"csrf": token, "u": username, "a": authorized})
}

func (m *MockServer) handleLogout(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"csrf": token})
}

// statusesForFlags maps a type-flags string to the statuses it selects.
func statusesForFlags(flags string) map[WorkflowStatus]bool {
	selected := make(map[WorkflowStatus]bool)
	for _, flag := range flags {
		switch flag {
		case 'a':
			selected[StatusApproved] = true
		case 'd':
			selected[StatusDraft] = true
		case 'r':
			selected[StatusInReview] = true
		case 's':
			selected[StatusSubmitted] = true
		}
	}
	return selected
}

func (m *MockServer) handleSubmissions(c *gin.Context) {
	token, fail := m.record(c)
	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend unavailable"})
		return
	}

	flags := c.PostForm(messages.FieldTypes)
	qid := c.PostForm(messages.FieldID)

	m.mu.Lock()
	var rows []map[string]string
	if qid != "" && qid != messages.NotGenerated {
		for _, sub := range m.revisions[qid] {
			rows = append(rows, m.rowFor(sub))
		}
	} else {
		selected := statusesForFlags(flags)
		for _, sub := range m.submissions {
			if selected[sub.Status] {
				rows = append(rows, m.rowFor(sub))
			}
		}
	}
	m.mu.Unlock()

	if rows == nil {
		rows = []map[string]string{}
	}
	c.JSON(http.StatusOK, gin.H{"csrf": token, "rows": rows})
}

func (m *MockServer) rowFor(sub *MockSubmission) map[string]string {
	return map[string]string{
		"01_qid":        sub.QID,
		"02_app_name":   sub.Answers[messages.KeyAppName],
		"03_team_email": sub.Answers[messages.KeyTeamEmail],
		"04_app_status": string(sub.Status),
	}
}
