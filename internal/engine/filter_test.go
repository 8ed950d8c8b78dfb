package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFilter(t *testing.T) {
	f, err := newEventFilter(`.sender.login != "dependabot[bot]"`)
	require.NoError(t, err)

	match, err := f.Match(context.Background(), []byte(`{"sender": {"login": "alice"}}`))
	require.NoError(t, err)
	assert.True(t, match)

	match, err = f.Match(context.Background(), []byte(`{"sender": {"login": "dependabot[bot]"}}`))
	require.NoError(t, err)
	assert.False(t, match)
}

func TestEventFilterNonBoolResult(t *testing.T) {
	f, err := newEventFilter(`.sender.login`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), []byte(`{"sender": {"login": "alice"}}`))
	assert.Error(t, err)
}

func TestEventFilterMultipleResults(t *testing.T) {
	f, err := newEventFilter(`.[]`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), []byte(`[true, false]`))
	assert.Error(t, err)
}

func TestEventFilterEmptyPayload(t *testing.T) {
	f, err := newEventFilter(`true`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), nil)
	assert.Error(t, err)
}

func TestEventFilterInvalidQuery(t *testing.T) {
	_, err := newEventFilter(`.[`)
	assert.Error(t, err)
}
