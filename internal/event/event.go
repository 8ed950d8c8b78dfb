// Package event classifies GitHub webhook events and resolves the pull
// request they belong to.
package event

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Review states of a submitted review.
const (
	ReviewStateApproved         = "approved"
	ReviewStateChangesRequested = "changes_requested"
	ReviewStateCommented        = "commented"
)

// Event is a classified webhook event.
// Fields that are not available for the Kind are empty.
type Event struct {
	Kind       Kind
	DeliveryID string
	Repository pullrequest.Repository
	// PullRequest is zero if the event is not associated with a pull
	// request.
	PullRequest pullrequest.Ref
	// Sender is the login of the user that caused the event.
	Sender string
	// HeadSHA is the commit that the event references.
	HeadSHA    string
	BaseBranch string

	// Label is the name of the label of labeled and unlabeled events.
	Label string
	// Title is the pull request title of opened and edited events.
	Title string
	// Merged is true for closed events of merged pull requests.
	Merged bool

	ReviewState string

	CommentID   int64
	CommentBody string

	CheckRunName       string
	CheckRunConclusion string

	// Tag is the name of the pushed tag.
	Tag string

	// JSON is the raw webhook payload.
	JSON []byte
}

func (e *Event) String() string {
	if e.PullRequest.IsZero() {
		return fmt.Sprintf("%s %s (deliveryID: %s)", e.Kind, e.Repository, e.DeliveryID)
	}

	return fmt.Sprintf("%s %s (deliveryID: %s)", e.Kind, e.PullRequest, e.DeliveryID)
}

func (e *Event) LogFields() []zap.Field {
	fields := []zap.Field{
		logfields.DeliveryID(e.DeliveryID),
		logfields.EventKind(e.Kind.String()),
	}

	fields = append(fields, e.Repository.LogFields()...)

	if !e.PullRequest.IsZero() {
		fields = append(fields, logfields.PullRequest(e.PullRequest.Number))
	}

	if e.HeadSHA != "" {
		fields = append(fields, logfields.Commit(e.HeadSHA))
	}

	if e.BaseBranch != "" {
		fields = append(fields, logfields.BaseBranch(e.BaseBranch))
	}

	if e.Sender != "" {
		fields = append(fields, logfields.User(e.Sender))
	}

	if e.Label != "" {
		fields = append(fields, logfields.Label(e.Label))
	}

	if e.CheckRunName != "" {
		fields = append(fields, logfields.CheckRun(e.CheckRunName))
	}

	if e.Tag != "" {
		fields = append(fields, logfields.Tag(e.Tag))
	}

	return fields
}
