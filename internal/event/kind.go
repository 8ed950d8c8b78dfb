package event

import "fmt"

// Kind is the classified type of a webhook event.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindPullRequestOpened
	KindPullRequestSynchronized
	KindPullRequestClosed
	KindPullRequestLabeled
	KindPullRequestUnlabeled
	KindPullRequestEdited
	KindReviewSubmitted
	KindCommentCreated
	KindCheckRunCompleted
	KindPushTag
)

var kindStrings = [...]string{
	KindUndefined:               "undefined",
	KindPullRequestOpened:       "pull_request_opened",
	KindPullRequestSynchronized: "pull_request_synchronized",
	KindPullRequestClosed:       "pull_request_closed",
	KindPullRequestLabeled:      "pull_request_labeled",
	KindPullRequestUnlabeled:    "pull_request_unlabeled",
	KindPullRequestEdited:       "pull_request_edited",
	KindReviewSubmitted:         "review_submitted",
	KindCommentCreated:          "comment_created",
	KindCheckRunCompleted:       "check_run_completed",
	KindPushTag:                 "push_tag",
}

func (k Kind) String() string {
	if int(k) > len(kindStrings)-1 {
		return fmt.Sprintf("unsupported Kind value: %d", k)
	}

	return kindStrings[k]
}

// NeedsPullRequest returns true if events of the kind can only be handled
// when they are associated with a pull request.
func (k Kind) NeedsPullRequest() bool {
	return k != KindPushTag && k != KindUndefined
}
