package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testcases := []struct {
		name     string
		expected Label
	}{
		{"hold", Label{Name: "hold", Kind: KindControl}},
		{"can-be-merged", Label{Name: "can-be-merged", Kind: KindControl}},
		{"CherryPicked", Label{Name: "CherryPicked", Kind: KindCherryPicked}},
		{"ApprovedBy-alice", Label{Name: "ApprovedBy-alice", Kind: KindApprovedBy, User: "alice"}},
		{"ApprovedBy-john-doe", Label{Name: "ApprovedBy-john-doe", Kind: KindApprovedBy, User: "john-doe"}},
		{"ChangesRequestedBy-bob", Label{Name: "ChangesRequestedBy-bob", Kind: KindChangesRequestedBy, User: "bob"}},
		{"CommentedBy-carol", Label{Name: "CommentedBy-carol", Kind: KindCommentedBy, User: "carol"}},
		{"LGTM-by-dave", Label{Name: "LGTM-by-dave", Kind: KindLGTMBy, User: "dave"}},
		{"size/XL", Label{Name: "size/XL", Kind: KindSize, Size: SizeXL}},
		{"size/huge", Label{Name: "size/huge", Kind: KindOther}},
		{"branch-release-1.0", Label{Name: "branch-release-1.0", Kind: KindBranch, Target: "release-1.0"}},
		{"cherry-pick-v2", Label{Name: "cherry-pick-v2", Kind: KindCherryPickRequest, Target: "v2"}},
		{"approvedby-alice", Label{Name: "approvedby-alice", Kind: KindOther}},
		{"ApprovedBy-", Label{Name: "ApprovedBy-", Kind: KindOther}},
		{"bug", Label{Name: "bug", Kind: KindOther}},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Parse(tc.name))
		})
	}
}

func TestSizeFor(t *testing.T) {
	testcases := []struct {
		lines    int
		expected Size
	}{
		{0, SizeXS},
		{19, SizeXS},
		{20, SizeS},
		{49, SizeS},
		{50, SizeM},
		{99, SizeM},
		{100, SizeL},
		{299, SizeL},
		{300, SizeXL},
		{499, SizeXL},
		{500, SizeXXL},
		{100000, SizeXXL},
	}

	for _, tc := range testcases {
		assert.Equal(t, tc.expected, SizeFor(tc.lines), "lines: %d", tc.lines)
	}

	assert.Equal(t, "size/M", SizeLabel(60))
}

func TestColor(t *testing.T) {
	l := Parse("hold")
	assert.Equal(t, "B60205", l.Color())
	assert.True(t, l.IsStatic())

	l = Parse("ApprovedBy-alice")
	assert.Equal(t, "0E8A16", l.Color())
	assert.False(t, l.IsStatic())

	l = Parse("custom")
	assert.Equal(t, defaultColor, l.Color())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("hold"))
	require.NoError(t, Validate(strings.Repeat("a", MaxNameLen)))
	require.ErrorIs(t, Validate(strings.Repeat("a", MaxNameLen+1)), ErrNameTooLong)
	require.Error(t, Validate(" "))
	require.NoError(t, Validate(strings.Repeat("ä", MaxNameLen)), "length is counted in characters")
	require.ErrorIs(t, Validate(strings.Repeat("ä", MaxNameLen+1)), ErrNameTooLong)
}

func TestSet(t *testing.T) {
	s := NewSet("size/S", "ApprovedBy-alice", "hold", "hold", "ChangesRequestedBy-bob")

	assert.Equal(t, 4, s.Len())
	assert.True(t, s.Has("hold"))
	assert.False(t, s.Has("Hold"))
	assert.Equal(t, []string{"ApprovedBy-alice", "ChangesRequestedBy-bob", "hold", "size/S"}, s.Names())

	reviewers := s.OfKind(KindApprovedBy, KindChangesRequestedBy)
	require.Len(t, reviewers, 2)
	assert.Equal(t, "alice", reviewers[0].User)
	assert.Equal(t, "bob", reviewers[1].User)

	assert.Equal(t, []string{"verified", "lgtm"}, s.Missing([]string{"verified", "hold", "lgtm"}))
}
