package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/pkg/models"
)

type fakeRunner struct {
	batches [][]Statement
	err     error
	closed  bool
}

func (f *fakeRunner) RunAll(_ context.Context, statements []Statement) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, statements)
	return nil
}

func (f *fakeRunner) Close(context.Context) error {
	f.closed = true
	return nil
}

func TestStatementsOrder(t *testing.T) {
	user := models.User{ID: 42, ScreenName: "tester"}
	posts := []models.Post{
		{ID: 2, UserID: 42, Retweet: &models.Post{ID: 1, UserID: 7}},
		{ID: 3, UserID: 42},
	}

	got := Statements(user, posts)
	var cyphers []string
	for _, st := range got {
		cyphers = append(cyphers, st.Cypher)
	}
	assert.Equal(t, []string{
		mergeUser,
		mergePost, mergePosted, // original 1
		mergePost, mergePosted, // repost 2
		mergeReposts,
		mergePost, mergePosted, // post 3
	}, cyphers)

	assert.Equal(t, int64(1), got[1].Params["id"])
	assert.Equal(t, map[string]any{"id": int64(2), "original_id": int64(1)}, got[5].Params)
}

func TestStatementsDeletedAuthor(t *testing.T) {
	got := Statements(models.User{ID: 1}, []models.Post{
		{ID: 2, UserID: 1, Retweet: &models.Post{ID: 9}},
	})
	require.Len(t, got, 5)
	assert.Equal(t, mergePost, got[1].Cypher)
	assert.Equal(t, mergePost, got[2].Cypher)
}

func TestWriteRunsOneBatch(t *testing.T) {
	r := &fakeRunner{}
	s := &Sink{runner: r}

	require.NoError(t, s.Write(context.Background(), models.User{ID: 1}, []models.Post{{ID: 2, UserID: 1}}))
	require.Len(t, r.batches, 1)
	assert.Len(t, r.batches[0], 3)

	require.NoError(t, s.Close())
	assert.True(t, r.closed)
}

func TestWriteError(t *testing.T) {
	s := &Sink{runner: &fakeRunner{err: errors.New("connection reset")}}
	err := s.Write(context.Background(), models.User{ID: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
