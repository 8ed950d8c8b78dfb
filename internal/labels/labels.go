// Package labels parses GitHub pull request label names into typed labels.
package labels

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxNameLen is the longest label name that is written to GitHub.
const MaxNameLen = 49

var ErrNameTooLong = errors.New("label name exceeds 49 characters")

// Control labels.
const (
	Hold         = "hold"
	WIP          = "wip"
	Verified     = "verified"
	LGTM         = "lgtm"
	CanBeMerged  = "can-be-merged"
	NeedsRebase  = "needs-rebase"
	HasConflicts = "has-conflicts"
	CherryPicked = "CherryPicked"
)

// Prefixes of dynamic labels.
const (
	ApprovedByPrefix         = "ApprovedBy-"
	ChangesRequestedByPrefix = "ChangesRequestedBy-"
	CommentedByPrefix        = "CommentedBy-"
	LGTMByPrefix             = "LGTM-by-"
	SizePrefix               = "size/"
	BranchPrefix             = "branch-"
	CherryPickPrefix         = "cherry-pick-"
)

// UserLabels are the labels that users can set and unset via comment
// commands.
var UserLabels = []string{Hold, Verified, WIP, LGTM}

const defaultColor = "D4C5F9"

var staticColors = map[string]string{
	Hold:         "B60205",
	Verified:     "0E8A16",
	WIP:          "B60205",
	LGTM:         "0E8A16",
	CanBeMerged:  "0E8A17",
	NeedsRebase:  "B60205",
	HasConflicts: "B60205",
	CherryPicked: "1D76DB",

	SizePrefix + string(SizeXS):  "ededed",
	SizePrefix + string(SizeS):   "0E8A16",
	SizePrefix + string(SizeM):   "F09C74",
	SizePrefix + string(SizeL):   "F5621C",
	SizePrefix + string(SizeXL):  "D93F0B",
	SizePrefix + string(SizeXXL): "B60205",
}

var dynamicColors = map[Kind]string{
	KindApprovedBy:         "0E8A16",
	KindLGTMBy:             "0E8A16",
	KindCommentedBy:        "D93F0B",
	KindChangesRequestedBy: "F5621C",
	KindCherryPickRequest:  "F09C74",
	KindBranch:             "1D76DB",
}

var prefixKinds = []struct {
	prefix string
	kind   Kind
}{
	{ApprovedByPrefix, KindApprovedBy},
	{ChangesRequestedByPrefix, KindChangesRequestedBy},
	{CommentedByPrefix, KindCommentedBy},
	{LGTMByPrefix, KindLGTMBy},
	{SizePrefix, KindSize},
	{BranchPrefix, KindBranch},
	{CherryPickPrefix, KindCherryPickRequest},
}

// Label is a parsed pull request label.
type Label struct {
	Name string
	Kind Kind

	// User is set for reviewer labels.
	User string
	// Size is set for size labels.
	Size Size
	// Target is the branch name of branch and cherry-pick request labels.
	Target string
}

// Parse derives the kind of a label from its name.
// Prefixes are matched case-sensitively and the whole remainder after the
// prefix is the user or target, it is never split further.
func Parse(name string) Label {
	result := Label{Name: name}

	switch name {
	case Hold, WIP, Verified, LGTM, CanBeMerged, NeedsRebase, HasConflicts:
		result.Kind = KindControl
		return result
	case CherryPicked:
		result.Kind = KindCherryPicked
		return result
	}

	for _, pk := range prefixKinds {
		rest, found := strings.CutPrefix(name, pk.prefix)
		if !found || rest == "" {
			continue
		}

		switch pk.kind {
		case KindSize:
			sz, ok := parseSize(rest)
			if !ok {
				return result
			}
			result.Size = sz

		case KindBranch, KindCherryPickRequest:
			result.Target = rest

		default:
			result.User = rest
		}

		result.Kind = pk.kind
		return result
	}

	return result
}

// IsStatic returns true if the label has a fixed meaning and color.
func (l *Label) IsStatic() bool {
	_, exists := staticColors[l.Name]
	return exists
}

// Color returns the hex color of the label in the repository.
func (l *Label) Color() string {
	if c, exists := staticColors[l.Name]; exists {
		return c
	}

	if c, exists := dynamicColors[l.Kind]; exists {
		return c
	}

	return defaultColor
}

func (l *Label) String() string {
	return l.Name
}

// Validate returns an error if the label can not be added to a pull request.
func Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("label name is empty")
	}

	if utf8.RuneCountInString(name) > MaxNameLen {
		return ErrNameTooLong
	}

	return nil
}

func IsUserLabel(name string) bool {
	for _, l := range UserLabels {
		if l == name {
			return true
		}
	}

	return false
}

func ApprovedBy(user string) string {
	return ApprovedByPrefix + user
}

func ChangesRequestedBy(user string) string {
	return ChangesRequestedByPrefix + user
}

func CommentedBy(user string) string {
	return CommentedByPrefix + user
}

func LGTMBy(user string) string {
	return LGTMByPrefix + user
}

func Branch(name string) string {
	return BranchPrefix + name
}

func CherryPick(target string) string {
	return CherryPickPrefix + target
}
