package labels

import "fmt"

// Kind is the category of a label. It is derived from the label name.
type Kind uint8

const (
	KindOther Kind = iota
	KindControl
	KindApprovedBy
	KindChangesRequestedBy
	KindCommentedBy
	KindLGTMBy
	KindSize
	KindBranch
	KindCherryPickRequest
	KindCherryPicked
)

var kindStrings = [...]string{
	KindOther:              "other",
	KindControl:            "control",
	KindApprovedBy:         "approved-by",
	KindChangesRequestedBy: "changes-requested-by",
	KindCommentedBy:        "commented-by",
	KindLGTMBy:             "lgtm-by",
	KindSize:               "size",
	KindBranch:             "branch",
	KindCherryPickRequest:  "cherry-pick-request",
	KindCherryPicked:       "cherry-picked",
}

func (k Kind) String() string {
	if int(k) > len(kindStrings)-1 {
		return fmt.Sprintf("unsupported Kind value: %d", k)
	}

	return kindStrings[k]
}

// IsReviewer returns true for labels that record the review of a user.
func (k Kind) IsReviewer() bool {
	switch k {
	case KindApprovedBy, KindChangesRequestedBy, KindCommentedBy, KindLGTMBy:
		return true
	default:
		return false
	}
}
