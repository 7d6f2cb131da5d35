package simplecms

// AttachmentInstruction is the caller's intent for a record's attachment.
// An instruction with both an upload and Clear set is a replacement.
type AttachmentInstruction struct {
	Upload *Upload
	Clear  bool
}

// Keep leaves the current attachment untouched.
func Keep() AttachmentInstruction { return AttachmentInstruction{} }

// Replace stores upload as the record's attachment.
func Replace(upload *Upload) AttachmentInstruction { return AttachmentInstruction{Upload: upload} }

// Clear removes the current attachment.
func Clear() AttachmentInstruction { return AttachmentInstruction{Clear: true} }

// IsReplace reports whether the instruction carries an upload.
func (in AttachmentInstruction) IsReplace() bool { return in.Upload != nil }

// IsClear reports whether the instruction clears without replacing.
func (in AttachmentInstruction) IsClear() bool { return in.Upload == nil && in.Clear }

// String names the effective variant.
func (in AttachmentInstruction) String() string {
	switch {
	case in.IsReplace():
		return "replace"
	case in.IsClear():
		return "clear"
	default:
		return "keep"
	}
}

// DecisionAction is the effect the service applies to the attachment.
type DecisionAction int

const (
	// ActionNoOp leaves the reference unchanged.
	ActionNoOp DecisionAction = iota
	// ActionStore stores the upload, points the record at it and then removes Old.
	ActionStore
	// ActionDeleteOld removes Old and clears the reference.
	ActionDeleteOld
)

func (a DecisionAction) String() string {
	switch a {
	case ActionStore:
		return "store"
	case ActionDeleteOld:
		return "delete_old"
	default:
		return "noop"
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Action DecisionAction
	Upload *Upload
	// Old is the reference to remove; nil when there is nothing to remove.
	Old *AttachmentRef
}

// Decide maps the current attachment and an instruction onto a Decision.
// It performs no I/O.
func Decide(current *AttachmentRef, in AttachmentInstruction) Decision {
	switch {
	case in.IsReplace():
		return Decision{Action: ActionStore, Upload: in.Upload, Old: current}
	case in.IsClear() && current != nil:
		return Decision{Action: ActionDeleteOld, Old: current}
	default:
		return Decision{Action: ActionNoOp}
	}
}
