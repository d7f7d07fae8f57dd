package jsonfile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/pkg/models"
)

func TestWriteMergesByID(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	user := models.User{ID: 7, ScreenName: "tester", FollowersCount: 10}
	created := time.Date(2023, 5, 1, 12, 0, 0, 0, models.ChinaTime)

	require.NoError(t, s.Write(ctx, user, []models.Post{
		{ID: 1, Text: "first", CreatedAt: created},
		{ID: 2, Text: "second"},
	}))

	user.FollowersCount = 11
	require.NoError(t, s.Write(ctx, user, []models.Post{
		{ID: 2, Text: "second, edited"},
		{ID: 3, Text: "third", Retweet: &models.Post{ID: 99, Text: "orig"}},
	}))

	doc, err := Load(s.Path(user))
	require.NoError(t, err)
	assert.Equal(t, int64(11), doc.User.FollowersCount)
	require.Len(t, doc.Posts, 3)
	assert.Equal(t, "first", doc.Posts[0].Text)
	assert.True(t, created.Equal(doc.Posts[0].CreatedAt))
	assert.Equal(t, "second, edited", doc.Posts[1].Text)
	require.NotNil(t, doc.Posts[2].Retweet)
	assert.Equal(t, int64(99), doc.Posts[2].Retweet.ID)
}

func TestLoadMissingFile(t *testing.T) {
	doc, err := Load(t.TempDir() + "/none.json")
	require.NoError(t, err)
	assert.Empty(t, doc.Posts)
}

func TestWriteRejectsCorruptDocument(t *testing.T) {
	s := New(t.TempDir())
	user := models.User{ID: 1, ScreenName: "x"}
	require.NoError(t, os.MkdirAll(s.dir+"/x", 0755))
	require.NoError(t, os.WriteFile(s.Path(user), []byte("{not json"), 0644))

	assert.Error(t, s.Write(context.Background(), user, []models.Post{{ID: 1}}))
}
