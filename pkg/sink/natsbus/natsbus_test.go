package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weibocrawler/pkg/models"
	"weibocrawler/pkg/sink"
)

type fakePublisher struct {
	msgs       []*nats.Msg
	flushes    int
	drained    bool
	publishErr error
}

func (f *fakePublisher) PublishMsg(msg *nats.Msg) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) FlushWithContext(context.Context) error {
	f.flushes++
	return nil
}

func (f *fakePublisher) Drain() error {
	f.drained = true
	return nil
}

func TestWritePublishesPerPost(t *testing.T) {
	pub := &fakePublisher{}
	s := newWithPublisher(pub, "")

	ctx := sink.WithRunID(context.Background(), "run-1")
	user := models.User{ID: 42, ScreenName: "tester"}
	require.NoError(t, s.Write(ctx, user, []models.Post{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, 1, pub.flushes)
	for _, msg := range pub.msgs {
		assert.Equal(t, "weibo.posts.42", msg.Subject)
		assert.Equal(t, "run-1", msg.Header.Get(HeaderRunID))
		assert.Equal(t, "42", msg.Header.Get(HeaderUserID))
	}

	var decoded Message
	require.NoError(t, json.Unmarshal(pub.msgs[1].Data, &decoded))
	assert.Equal(t, int64(2), decoded.Post.ID)
	assert.Equal(t, "tester", decoded.User.ScreenName)
}

func TestWriteWithoutRunID(t *testing.T) {
	pub := &fakePublisher{}
	s := newWithPublisher(pub, "crawl.")

	require.NoError(t, s.Write(context.Background(), models.User{ID: 7}, []models.Post{{ID: 1}}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "crawl.7", pub.msgs[0].Subject)
	assert.Empty(t, pub.msgs[0].Header.Get(HeaderRunID))
}

func TestWriteEmptyIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, newWithPublisher(pub, "").Write(context.Background(), models.User{ID: 1}, nil))
	assert.Zero(t, pub.flushes)
}

func TestWritePublishError(t *testing.T) {
	pub := &fakePublisher{publishErr: nats.ErrConnectionClosed}
	err := newWithPublisher(pub, "").Write(context.Background(), models.User{ID: 1}, []models.Post{{ID: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, nats.ErrConnectionClosed))
}

func TestCloseDrains(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, newWithPublisher(pub, "").Close())
	assert.True(t, pub.drained)
}
