package instagram

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jfk9w/gramrelay/internal/3rdparty/instagram"
	"github.com/jfk9w/gramrelay/internal/core"
	"github.com/jfk9w/gramrelay/internal/ext/vendors/instagram/internal"
	"github.com/jfk9w/gramrelay/internal/feed"
	"github.com/jfk9w/gramrelay/internal/util"

	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/colf"
	"github.com/jfk9w-go/flu/logf"
	tghtml "github.com/jfk9w-go/telegram-bot-api/ext/html"
	"github.com/pkg/errors"
)

var postRegexp = regexp.MustCompile(`^((http|https)://)?(www\.)?instagram\.com/(p|reel)/([A-Za-z0-9-_]+)/?.*$`)

// DefaultReply is sent as a comment reply when only a DM text is configured.
const DefaultReply = "Check your DM! 📩"

type Context interface {
	instagram.Context
	core.StorageContext
}

type CommentsData struct {
	MediaID  int64            `json:"media_id"`
	Code     string           `json:"code"`
	Keywords []string         `json:"keywords,omitempty"`
	Reply    string           `json:"reply,omitempty"`
	DM       string           `json:"dm,omitempty"`
	Backlog  bool             `json:"backlog,omitempty"`
	Offset   int64            `json:"offset,omitempty"`
	Replied  colf.Set[string] `json:"replied,omitempty"`
}

type Comments[C Context] struct {
	client instagram.Interface
	events feed.EventStorage
}

func (v *Comments[C]) String() string {
	return "instagram/comments"
}

func (v *Comments[C]) Include(ctx context.Context, app apfel.MixinApp[C]) error {
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

func (v *Comments[C]) Parse(ctx context.Context, ref string, options []string) (*feed.Draft, error) {
	groups := postRegexp.FindStringSubmatch(ref)
	if len(groups) < 6 {
		return nil, nil
	}

	code := groups[5]
	mediaID, err := instagram.ParseMediaCode(code)
	if err != nil {
		return nil, errors.Wrap(err, "parse media code")
	}

	data := &CommentsData{
		MediaID: mediaID,
		Code:    code,
	}

	for _, option := range options {
		switch {
		case option == "backlog":
			data.Backlog = true
		case strings.HasPrefix(option, "dm="):
			data.DM = option[3:]
		case strings.HasPrefix(option, "reply="):
			data.Reply = option[6:]
		default:
			data.Keywords = append(data.Keywords, strings.ToLower(option))
		}
	}

	if data.DM != "" && data.Reply == "" {
		data.Reply = DefaultReply
	}

	media, err := v.client.GetMedia(ctx, mediaID)
	if err != nil {
		return nil, errors.Wrap(err, "get media")
	}

	return &feed.Draft{
		SubID: code,
		Name:  "@" + media.User.Username + "/" + code,
		Data:  data,
	}, nil
}

func (v *Comments[C]) Refresh(ctx context.Context, header feed.Header, refresh feed.Refresh) error {
	var data CommentsData
	if err := refresh.Init(ctx, &data); err != nil {
		return err
	}

	comments, err := v.client.GetComments(ctx, data.MediaID)
	if err != nil {
		return classifyUpstreamError(err)
	}

	sort.Sort(internal.Comments(comments))

	if data.Offset == 0 && !data.Backlog && len(comments) > 0 {
		// first refresh relays nothing, start right after the newest comment
		data.Offset = comments[len(comments)-1].PK
		return refresh.Submit(ctx, nil, data)
	}

	dirty := false
	for i := range comments {
		comment := &comments[i]
		if comment.PK <= data.Offset {
			continue
		}

		data.Offset = comment.PK
		if !matchKeywords(comment.Text, data.Keywords) {
			dirty = true
			continue
		}

		if err := v.respond(ctx, header, &data, comment); err != nil {
			return err
		}

		if err := refresh.Submit(ctx, v.writeHTML(data, comment), data); err != nil {
			return err
		}

		dirty = false
		v.saveEvent(ctx, header, feed.EventRelayed, comment)
	}

	if dirty {
		return refresh.Submit(ctx, nil, data)
	}

	return nil
}

func (v *Comments[C]) respond(ctx context.Context, header feed.Header, data *CommentsData, comment *instagram.Comment) error {
	key := strconv.FormatInt(comment.PK, 10)
	if (data.DM == "" && data.Reply == "") || data.Replied[key] {
		return nil
	}

	if data.DM != "" {
		if err := v.client.SendDirectMessage(ctx, comment.User.PK, data.DM); err != nil {
			return classifyUpstreamError(err)
		}

		v.saveEvent(ctx, header, feed.EventDM, comment)
	}

	if data.Reply != "" {
		if err := v.client.ReplyToComment(ctx, data.MediaID, comment.PK, data.Reply); err != nil {
			return classifyUpstreamError(err)
		}

		v.saveEvent(ctx, header, feed.EventReplied, comment)
	}

	if data.Replied == nil {
		data.Replied = make(colf.Set[string])
	}

	data.Replied.Add(key)
	return nil
}

func (v *Comments[C]) saveEvent(ctx context.Context, header feed.Header, eventType string, comment *instagram.Comment) {
	err := v.events.SaveEvent(ctx, header.FeedID, eventType, map[string]any{
		"sub_id":     header.SubID,
		"comment_id": comment.PK,
		"user_id":    comment.User.PK,
	})

	logf.Get(v).Resultf(ctx, logf.Trace, logf.Warn, "save %s event for [%s]: %v", eventType, header, err)
}

func (v *Comments[C]) writeHTML(data CommentsData, comment *instagram.Comment) feed.WriteHTML {
	return func(html *tghtml.Writer) error {
		html.Bold("@"+comment.User.Username).
			Text(" @ ").
			Link("[post]", mediaURL(data.Code)).
			Text("\n%s", comment.Text)
		return nil
	}
}

func matchKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}

	for _, keyword := range keywords {
		if util.ContainsFuzzy(text, keyword) {
			return true
		}
	}

	return false
}

func mediaURL(code string) string {
	return "https://www.instagram.com/p/" + code + "/"
}
