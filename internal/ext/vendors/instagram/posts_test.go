package instagram

import (
	"context"
	"testing"
	"time"

	"github.com/jfk9w/gramrelay/internal/3rdparty/instagram"
	"github.com/jfk9w/gramrelay/internal/feed"

	"github.com/jfk9w-go/flu/gormf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostsRefresh struct {
	init    any
	updates []PostsData
	writes  int
}

func (r *fakePostsRefresh) Init(ctx context.Context, value any) error {
	data, err := gormf.ToJSONB(r.init)
	if err != nil {
		return err
	}

	return data.As(value)
}

func (r *fakePostsRefresh) Submit(ctx context.Context, writeHTML feed.WriteHTML, value any) error {
	data, err := gormf.ToJSONB(value)
	if err != nil {
		return err
	}

	var update PostsData
	if err := data.As(&update); err != nil {
		return err
	}

	r.updates = append(r.updates, update)
	if writeHTML != nil {
		r.writes++
	}

	return nil
}

func post(pk int64, takenAt int64, caption string) instagram.Media {
	return instagram.Media{
		PK:      pk,
		Code:    instagram.FormatMediaCode(pk),
		TakenAt: takenAt,
		Caption: &instagram.Caption{Text: caption},
		User:    instagram.User{PK: 1, Username: "someone"},
	}
}

func TestPosts_Parse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := &fakeClient{user: &instagram.User{PK: 42, Username: "someone"}}
	v := &Posts[Context]{client: client, events: new(fakeEvents)}

	for _, ref := range []string{"https://www.instagram.com/p/B/", "instagram.com/stories/"} {
		draft, err := v.Parse(ctx, ref, nil)
		assert.Nil(t, err)
		assert.Nil(t, draft)
	}

	for _, ref := range []string{"@someone", "https://www.instagram.com/someone"} {
		draft, err := v.Parse(ctx, ref, []string{"backlog"})
		assert.Nil(t, err)
		require.NotNil(t, draft)
		assert.Equal(t, "someone", draft.SubID)
		assert.Equal(t, "@someone", draft.Name)

		data := draft.Data.(*PostsData)
		assert.Equal(t, int64(42), data.UserID)
		assert.True(t, data.Backlog)
	}
}

func TestPosts_Refresh_DedupAndOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := &fakeClient{
		posts: []instagram.Media{
			post(101, 2, "new"),
			post(99, 1, "old"),
			post(102, 3, "newer"),
		},
	}

	events := new(fakeEvents)
	v := &Posts[Context]{client: client, events: events}
	refresh := &fakePostsRefresh{init: PostsData{UserID: 42, Offset: 100}}
	assert.Nil(t, v.Refresh(ctx, newTestHeader(), refresh))

	require.Equal(t, 2, len(refresh.updates))
	assert.Equal(t, int64(101), refresh.updates[0].Offset)
	assert.Equal(t, int64(102), refresh.updates[1].Offset)
	assert.Equal(t, 2, refresh.writes)
	assert.Equal(t, []string{feed.EventRelayed, feed.EventRelayed}, events.types)
}

func TestPosts_Refresh_OrderFollowsIDsNotTimestamps(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := &fakeClient{
		posts: []instagram.Media{
			post(102, 1, "older timestamp, higher id"),
			post(101, 2, "newer timestamp, lower id"),
		},
	}

	v := &Posts[Context]{client: client, events: new(fakeEvents)}
	refresh := &fakePostsRefresh{init: PostsData{UserID: 42, Offset: 100}}
	assert.Nil(t, v.Refresh(ctx, newTestHeader(), refresh))

	require.Equal(t, 2, len(refresh.updates))
	assert.Equal(t, int64(101), refresh.updates[0].Offset)
	assert.Equal(t, int64(102), refresh.updates[1].Offset)
	assert.Equal(t, 2, refresh.writes)
}

func TestPosts_Refresh_FirstRunSeedsCursor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := &fakeClient{posts: []instagram.Media{post(101, 1, "a"), post(102, 2, "b")}}
	v := &Posts[Context]{client: client, events: new(fakeEvents)}

	refresh := &fakePostsRefresh{init: PostsData{UserID: 42}}
	assert.Nil(t, v.Refresh(ctx, newTestHeader(), refresh))
	require.Equal(t, 1, len(refresh.updates))
	assert.Equal(t, int64(102), refresh.updates[0].Offset)
	assert.Equal(t, 0, refresh.writes)

	// with the backlog option everything is relayed from the start
	refresh = &fakePostsRefresh{init: PostsData{UserID: 42, Backlog: true}}
	assert.Nil(t, v.Refresh(ctx, newTestHeader(), refresh))
	require.Equal(t, 2, len(refresh.updates))
	assert.Equal(t, 2, refresh.writes)
}
