package vendors

import (
	"github.com/jfk9w/gramrelay/internal/ext/vendors/instagram"
)

func InstagramComments[C instagram.Context]() *instagram.Comments[C] {
	return new(instagram.Comments[C])
}

func InstagramPosts[C instagram.Context]() *instagram.Posts[C] {
	return new(instagram.Posts[C])
}
