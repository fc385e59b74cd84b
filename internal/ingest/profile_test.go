package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devsignal-systems/devsignal/internal/models"
)

type staticProfileTokens struct {
	token string
	err   error
}

func (s staticProfileTokens) GetValidToken(ctx context.Context, integrationID string) (string, error) {
	return s.token, s.err
}

type recordingUserInfo struct {
	gotToken string
	gotUser  string
	name     string
}

func (r *recordingUserInfo) UserInfo(ctx context.Context, token, userID string) (string, error) {
	r.gotToken = token
	r.gotUser = userID
	return r.name, nil
}

func TestSlackProfileLookupPassesBrokeredToken(t *testing.T) {
	client := &recordingUserInfo{name: "Grace Hopper"}
	lookup := NewSlackProfileLookup(staticProfileTokens{token: "xoxb-1"}, client)

	name, err := lookup.DisplayName(context.Background(), &models.Integration{ID: "int-1"}, "U7")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", name)
	assert.Equal(t, "xoxb-1", client.gotToken)
	assert.Equal(t, "U7", client.gotUser)
}

func TestSlackProfileLookupTokenFailure(t *testing.T) {
	lookup := NewSlackProfileLookup(staticProfileTokens{err: errors.New("not configured")}, &recordingUserInfo{})

	_, err := lookup.DisplayName(context.Background(), &models.Integration{ID: "int-1"}, "U7")
	assert.ErrorContains(t, err, "profile token")
}
