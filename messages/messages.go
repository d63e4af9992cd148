package messages

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint paths and wire field names for the GoASQ backend protocol.

// Operation identifies one backend request kind.
type Operation string

const (
	OpSubmit        Operation = "submit"
	OpSaveDraft     Operation = "save_draft"
	OpLoadAnswers   Operation = "load_answers"
	OpLoadDiff      Operation = "load_diff"
	OpChangeStatus  Operation = "change_status"
	OpLogin         Operation = "login"
	OpLogout        Operation = "logout"
	OpLoadSubmitted Operation = "load_submissions"
)

// Endpoint paths
const (
	PathSubmit      = "/submit"
	PathSaveDraft   = "/savedraft"
	PathLoadOne     = "/loadone"
	PathDiff        = "/diff"
	PathStatus      = "/status"
	PathLogin       = "/login"
	PathLogout      = "/logout"
	PathSubmissions = "/submissions"
)

// Form field names
const (
	FieldID       = "id"
	FieldXSRF     = "_xsrf_"
	FieldAnswers  = "answers"
	FieldUser     = "u"
	FieldPassword = "p"
	FieldStatus   = "s"
	FieldTypes    = "t"
)

// Status change codes sent on the wire
const (
	StatusCodeReview  = "r"
	StatusCodeApprove = "a"
)

// Reserved answer keys. These live inside the answer mapping next to the
// template-defined field ids and carry metadata rather than answers.
const (
	KeyQID       = "qid"
	KeyAppStatus = "app_status"
	KeyAppName   = "app_name"
	KeyTeamEmail = "app_team_email"

	// Version markers stamped into imported answer files. Keys carrying the
	// prefix are excluded from diff computation.
	VersionMarkerPrefix = "q_version"
	VersionMarkerV01    = "q_version_0_1"
	VersionMarkerV02    = "q_version_0_2"

	// Value stored under a version marker key.
	VersionMarkerChecked = "checked"
)

// NotGenerated is the sentinel identity used before the server has assigned
// a questionnaire id, and again after every successful submission.
const NotGenerated = "NOT-GENERATED"

// Advisory texts shown to the user. One fixed string per failure surface.
const (
	AdvisorySubmitFailed      = "Saving the questionnaire failed! Please sign-in and try again."
	AdvisoryLoadFailed        = "Loading the answers failed! Please sign-in and try again."
	AdvisoryDiffFailed        = "Loading the last submitted answers failed! Please sign-in and try again."
	AdvisoryStatusFailed      = "Status change request failed! Please sign-in and try again."
	AdvisorySubmissionsFailed = "Couldn't load submissions! Please try again."
	AdvisoryTemplateFailed    = "Loading the questionnaire failed! Please try again."
	AdvisoryLoginFailed       = "Login failed."
	AdvisorySignedOut         = "You have been signed out."
	AdvisoryReadOnly          = "This questionnaire is readonly. Please sign in to edit and save."
	AdvisoryNewerRevision     = "There is a more recent version of the answers that you can view through the revisions listing."
	AdvisoryUnmodified        = "The answers have not been modified since these were last saved."
	AdvisoryRequiredFields    = "Please fill in the required fields."
)

// Confirmation prompts for destructive or terminal actions.
const (
	ConfirmClearAnswers = "Are you sure that you want to delete all answers?"
	ConfirmSubmit       = "Are you sure that you want to submit answers?"
	ConfirmReview       = "Are you sure that you want to finish reviewing the answers? This will notify the submitter that the review is done."
	ConfirmApprove      = "Are you sure that you want to approve this form?"
)

// EndpointBuilder builds request URLs for a GoASQ backend rooted at baseURL.
type EndpointBuilder struct {
	baseURL string
}

// NewEndpointBuilder creates a builder for the given backend base URL.
// A trailing slash on the base URL is tolerated.
func NewEndpointBuilder(baseURL string) *EndpointBuilder {
	return &EndpointBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// BuildURL returns the full URL for an operation.
func (b *EndpointBuilder) BuildURL(op Operation) string {
	return b.baseURL + PathFor(op)
}

// BuildLoadByIDURL returns the GET form of the load endpoint used when a
// questionnaire id arrives through the page URL rather than the search box.
func (b *EndpointBuilder) BuildLoadByIDURL(id string) string {
	return fmt.Sprintf("%s%s?%s=%s", b.baseURL, PathLoadOne, FieldID, url.QueryEscape(id))
}

// PathFor maps an operation to its endpoint path.
func PathFor(op Operation) string {
	switch op {
	case OpSubmit:
		return PathSubmit
	case OpSaveDraft:
		return PathSaveDraft
	case OpLoadAnswers:
		return PathLoadOne
	case OpLoadDiff:
		return PathDiff
	case OpChangeStatus:
		return PathStatus
	case OpLogin:
		return PathLogin
	case OpLogout:
		return PathLogout
	case OpLoadSubmitted:
		return PathSubmissions
	default:
		return ""
	}
}

// AdvisoryFor maps an operation to its fixed transport-failure advisory.
func AdvisoryFor(op Operation) string {
	switch op {
	case OpSubmit, OpSaveDraft:
		return AdvisorySubmitFailed
	case OpLoadAnswers:
		return AdvisoryLoadFailed
	case OpLoadDiff:
		return AdvisoryDiffFailed
	case OpChangeStatus:
		return AdvisoryStatusFailed
	case OpLoadSubmitted:
		return AdvisorySubmissionsFailed
	case OpLogin:
		return AdvisoryLoginFailed
	default:
		return ""
	}
}

// IsVersionMarker reports whether an answer key is a version marker.
func IsVersionMarker(key string) bool {
	return strings.HasPrefix(key, VersionMarkerPrefix)
}

// IsReserved reports whether an answer key belongs to the reserved metadata
// schema rather than the template's own field ids.
func IsReserved(key string) bool {
	switch key {
	case KeyQID, KeyAppStatus, KeyAppName, KeyTeamEmail:
		return true
	}
	return IsVersionMarker(key)
}
