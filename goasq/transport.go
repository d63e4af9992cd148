package goasq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Morningstar/GoASQ/messages"
)

// TransportError marks any non-success backend response. The session enters
// read-only mode whenever an operation fails with it.
type TransportError struct {
	Op         messages.Operation
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Op, e.StatusCode)
}

// SaveResponse is returned by submit and save-draft.
type SaveResponse struct {
	QIDSaved string `json:"qid_saved"`
	Msg      string `json:"msg"`
	QIDNew   string `json:"qid_new"`
	CSRF     string `json:"csrf"`
}

// LoadResponse is returned by load-by-id and load-last-submitted.
type LoadResponse struct {
	QID     string            `json:"qid"`
	CSRF    string            `json:"csrf"`
	Answers map[string]string `json:"answers"`
}

// LoginResponse is returned by login. U is empty when the credentials were
// rejected; A is the string "True" for reviewer-authorized users.
type LoginResponse struct {
	U    string `json:"u"`
	A    string `json:"a"`
	CSRF string `json:"csrf"`
}

// TokenResponse is returned by status changes and logout.
type TokenResponse struct {
	CSRF string `json:"csrf"`
}

// SubmissionsResponse is returned by the submissions listing.
type SubmissionsResponse struct {
	CSRF string              `json:"csrf"`
	Rows []map[string]string `json:"rows"`
}

// Client sends form-encoded requests to a GoASQ backend and decodes the
// JSON responses.
type Client struct {
	httpClient *http.Client
	builder    *messages.EndpointBuilder
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		builder:    messages.NewEndpointBuilder(baseURL),
	}
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// postForm sends one form-encoded POST and returns the response body.
// Any transport error or non-2xx status comes back as a TransportError.
func (c *Client) postForm(op messages.Operation, form url.Values) ([]byte, error) {
	endpoint := c.builder.BuildURL(op)
	log.Debugf("Sending %s request to %s", op, endpoint)

	resp, err := c.httpClient.Post(endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("%s request returned status %d", op, resp.StatusCode)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeResponse[T any](op messages.Operation, body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %v", op, err)
	}
	return &out, nil
}

// Save submits or saves answers, depending on op.
func (c *Client) Save(op messages.Operation, id, xsrf, answersJSON string) (*SaveResponse, error) {
	form := url.Values{
		messages.FieldID:      {id},
		messages.FieldXSRF:    {xsrf},
		messages.FieldAnswers: {answersJSON},
	}
	body, err := c.postForm(op, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[SaveResponse](op, body)
}

// Load fetches saved answers by search term via POST.
func (c *Client) Load(searchTerm, xsrf string) (*LoadResponse, error) {
	form := url.Values{
		messages.FieldID:   {searchTerm},
		messages.FieldXSRF: {xsrf},
	}
	body, err := c.postForm(messages.OpLoadAnswers, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[LoadResponse](messages.OpLoadAnswers, body)
}

// LoadByID fetches saved answers through the GET form of the load endpoint,
// used when a questionnaire id arrives in the page URL.
func (c *Client) LoadByID(id string) (*LoadResponse, error) {
	endpoint := c.builder.BuildLoadByIDURL(id)
	log.Debugf("Sending %s request to %s", messages.OpLoadAnswers, endpoint)

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, &TransportError{Op: messages.OpLoadAnswers, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: messages.OpLoadAnswers, StatusCode: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: messages.OpLoadAnswers, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decodeResponse[LoadResponse](messages.OpLoadAnswers, body)
}

// LoadLastSubmitted fetches the last answers saved at the backend for the
// given questionnaire id, used for diff computation.
func (c *Client) LoadLastSubmitted(id, xsrf string) (*LoadResponse, error) {
	form := url.Values{
		messages.FieldID:   {id},
		messages.FieldXSRF: {xsrf},
	}
	body, err := c.postForm(messages.OpLoadDiff, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[LoadResponse](messages.OpLoadDiff, body)
}

// ChangeStatus submits a workflow status change, statusCode being one of
// the wire codes "r" or "a".
func (c *Client) ChangeStatus(id, xsrf, statusCode string) (*TokenResponse, error) {
	form := url.Values{
		messages.FieldID:     {id},
		messages.FieldXSRF:   {xsrf},
		messages.FieldStatus: {statusCode},
	}
	body, err := c.postForm(messages.OpChangeStatus, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[TokenResponse](messages.OpChangeStatus, body)
}

// Login authenticates a user.
func (c *Client) Login(username, password, xsrf string) (*LoginResponse, error) {
	form := url.Values{
		messages.FieldUser:     {username},
		messages.FieldPassword: {password},
		messages.FieldXSRF:     {xsrf},
	}
	body, err := c.postForm(messages.OpLogin, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[LoginResponse](messages.OpLogin, body)
}

// Logout ends the backend session.
func (c *Client) Logout(xsrf string) (*TokenResponse, error) {
	form := url.Values{
		messages.FieldXSRF: {xsrf},
	}
	body, err := c.postForm(messages.OpLogout, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[TokenResponse](messages.OpLogout, body)
}

// LoadSubmissions fetches submission metadata rows. typeFlags is the status
// filter string over {a,d,r,s}; id is set when loading revisions of one
// questionnaire and empty otherwise.
func (c *Client) LoadSubmissions(typeFlags, id, xsrf string) (*SubmissionsResponse, error) {
	form := url.Values{
		messages.FieldTypes: {typeFlags},
		messages.FieldID:    {id},
		messages.FieldXSRF:  {xsrf},
	}
	body, err := c.postForm(messages.OpLoadSubmitted, form)
	if err != nil {
		return nil, err
	}
	return decodeResponse[SubmissionsResponse](messages.OpLoadSubmitted, body)
}
