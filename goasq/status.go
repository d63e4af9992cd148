package goasq

// WorkflowStatus is the server-tracked questionnaire status. It is assigned
// wholesale from server responses and status-change acknowledgements, never
// derived from local business rules.
type WorkflowStatus string

const (
	StatusUnknown   WorkflowStatus = ""
	StatusDraft     WorkflowStatus = "Draft"
	StatusSubmitted WorkflowStatus = "Submitted"
	StatusInReview  WorkflowStatus = "In Review"
	StatusApproved  WorkflowStatus = "Approved"
	StatusRevision  WorkflowStatus = "Revision"
)

// ParseWorkflowStatus maps a server status string to a WorkflowStatus.
// Anything unrecognized is Unknown.
func ParseWorkflowStatus(s string) WorkflowStatus {
	switch s {
	case string(StatusDraft):
		return StatusDraft
	case string(StatusSubmitted):
		return StatusSubmitted
	case string(StatusInReview):
		return StatusInReview
	case string(StatusApproved):
		return StatusApproved
	case string(StatusRevision):
		return StatusRevision
	}
	return StatusUnknown
}

// Action is a user-facing operation that can be enabled or disabled.
type Action string

const (
	ActionSave    Action = "save"
	ActionSubmit  Action = "submit"
	ActionReview  Action = "review"
	ActionApprove Action = "approve"
)

// ActionSet is the set of currently permitted actions plus the
// newer-revision notice flag raised by the Revision status.
type ActionSet struct {
	Save    bool
	Submit  bool
	Review  bool
	Approve bool

	// NewerRevision signals that a more recent version of the answers
	// exists and should be viewed through the revisions listing.
	NewerRevision bool
}

// Allows reports whether the given action is enabled.
func (a ActionSet) Allows(action Action) bool {
	switch action {
	case ActionSave:
		return a.Save
	case ActionSubmit:
		return a.Submit
	case ActionReview:
		return a.Review
	case ActionApprove:
		return a.Approve
	}
	return false
}

// PermittedActions projects the current status, read-only flag and
// authorization flag onto the set of enabled actions. It is a pure function
// of its three inputs and is recomputed wholesale after every
// status-affecting event.
func PermittedActions(status WorkflowStatus, readOnly, authorized bool) ActionSet {
	if readOnly {
		return ActionSet{}
	}
	switch status {
	case StatusRevision:
		return ActionSet{NewerRevision: true}
	case StatusDraft:
		return ActionSet{Save: true, Submit: true}
	case StatusInReview:
		return ActionSet{Submit: true, Approve: authorized}
	case StatusApproved:
		return ActionSet{Review: authorized}
	case StatusSubmitted:
		return ActionSet{Submit: true, Review: authorized}
	}
	return ActionSet{}
}
