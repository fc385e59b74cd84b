package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadPush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"commits": [{"id": "c1", "message": "one", "author": {"name": "ann", "email": "a@x.com", "username": "ann"}}],
		"head_commit": {"id": "c1", "message": "one"},
		"repository": {"id": 555, "full_name": "acme/api"},
		"installation": {"id": 9001}
	}`)

	payload, err := ParsePayload(KindPush, body)
	require.NoError(t, err)

	push, ok := payload.(*PushEvent)
	require.True(t, ok)
	assert.Equal(t, "refs/heads/main", push.Ref)
	require.Len(t, push.Commits, 1)
	assert.Equal(t, "c1", push.Commits[0].ID)
	assert.Equal(t, "ann", push.Commits[0].Author.Username)
	assert.Equal(t, int64(555), push.Repository.ID)
	assert.Equal(t, int64(9001), push.Installation.ID)
}

func TestParsePayloadPullRequest(t *testing.T) {
	body := []byte(`{
		"action": "opened",
		"pull_request": {"id": 42, "number": 7, "title": "Add retry", "user": {"login": "ann"}},
		"repository": {"id": 555, "full_name": "acme/api"},
		"installation": {"id": 9001}
	}`)

	payload, err := ParsePayload(KindPullRequest, body)
	require.NoError(t, err)

	pr, ok := payload.(*PullRequestEvent)
	require.True(t, ok)
	assert.Equal(t, "opened", pr.Action)
	assert.Equal(t, int64(42), pr.PullRequest.ID)
	assert.Equal(t, "Add retry", pr.PullRequest.Title)
}

func TestParsePayloadInstallationRepositories(t *testing.T) {
	body := []byte(`{
		"action": "added",
		"installation": {"id": 9001},
		"repositories_added": [{"id": 1, "full_name": "acme/a"}],
		"repositories_removed": [{"id": 2, "full_name": "acme/b"}]
	}`)

	payload, err := ParsePayload(KindInstallationRepositories, body)
	require.NoError(t, err)

	ev, ok := payload.(*InstallationRepositoriesEvent)
	require.True(t, ok)
	require.Len(t, ev.RepositoriesAdded, 1)
	require.Len(t, ev.RepositoriesRemoved, 1)
	assert.Equal(t, "acme/a", ev.RepositoriesAdded[0].FullName)
}

func TestParsePayloadUnknownKind(t *testing.T) {
	payload, err := ParsePayload("star", []byte(`{"action": "created"}`))
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestParsePayloadMalformed(t *testing.T) {
	_, err := ParsePayload(KindPush, []byte(`{"ref": 12`))
	assert.Error(t, err)
}
