package instagram

import (
	"context"
	"regexp"
	"sort"

	"github.com/jfk9w/gramrelay/internal/3rdparty/instagram"
	"github.com/jfk9w/gramrelay/internal/core"
	"github.com/jfk9w/gramrelay/internal/ext/vendors/instagram/internal"
	"github.com/jfk9w/gramrelay/internal/feed"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/logf"
	tghtml "github.com/jfk9w-go/telegram-bot-api/ext/html"
	"github.com/pkg/errors"
)

var accountRegexp = regexp.MustCompile(`^(?:(?:http|https)://)?(?:www\.)?instagram\.com/([A-Za-z0-9._]+)/?$|^@([A-Za-z0-9._]+)$`)

type PostsData struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Backlog  bool   `json:"backlog,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
}

type Posts[C Context] struct {
	client instagram.Interface
	events feed.EventStorage
}

func (v *Posts[C]) String() string {
	return "instagram/posts"
}

func (v *Posts[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
	var client instagram.Client[C]
	if err := app.Use(ctx, &client, false); err != nil {
		return err
	}

	var storage core.Storage[C]
	if err := app.Use(ctx, &storage, false); err != nil {
		return err
	}

	v.client = &client
	v.events = storage
	return nil
}

func (v *Posts[C]) Parse(ctx context.Context, ref string, options []string) (*feed.Draft, error) {
	groups := accountRegexp.FindStringSubmatch(ref)
	if len(groups) < 3 {
		return nil, nil
	}

	username := groups[1]
	if username == "" {
		username = groups[2]
	}

	switch username {
	case "p", "reel", "tv", "stories", "explore":
		return nil, nil
	}

	data := &PostsData{Username: username}
	for _, option := range options {
		if option == "backlog" {
			data.Backlog = true
		}
	}

	user, err := v.client.GetUser(ctx, username)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}

	data.UserID = user.PK
	return &feed.Draft{
		SubID: username,
		Name:  "@" + user.Username,
		Data:  data,
	}, nil
}

func (v *Posts[C]) Refresh(ctx context.Context, header feed.Header, refresh feed.Refresh) error {
	var data PostsData
	if err := refresh.Init(ctx, &data); err != nil {
		return err
	}

	posts, err := v.client.GetUserFeed(ctx, data.UserID)
	if err != nil {
		return classifyUpstreamError(err)
	}

	sort.Sort(internal.Medias(posts))

	if data.Offset == 0 && !data.Backlog && len(posts) > 0 {
		data.Offset = posts[len(posts)-1].PK
		return refresh.Submit(ctx, nil, data)
	}

	for i := range posts {
		post := &posts[i]
		if post.PK <= data.Offset {
			continue
		}

		data.Offset = post.PK
		if err := refresh.Submit(ctx, v.writeHTML(post), data); err != nil {
			return err
		}

		err := v.events.SaveEvent(ctx, header.FeedID, feed.EventRelayed, map[string]any{
			"sub_id":   header.SubID,
			"media_id": post.PK,
		})

		logf.Get(v).Resultf(ctx, logf.Trace, logf.Warn, "save %s event for [%s]: %v", feed.EventRelayed, header, err)
	}

	return nil
}

func (v *Posts[C]) writeHTML(post *instagram.Media) feed.WriteHTML {
	return func(html *tghtml.Writer) error {
		html.Bold("@"+post.User.Username).
			Text(" @ ").
			Link("[post]", post.URL())

		if caption := post.CaptionText(); caption != "" {
			html.Text("\n%s", caption)
		}

		return nil
	}
}
