package internal

import "github.com/jfk9w/gramrelay/internal/3rdparty/instagram"

// Comments orders comments by ascending comment ID. The cursor skip
// test compares IDs, so timestamps must not influence the order.
type Comments []instagram.Comment

func (c Comments) Len() int {
	return len(c)
}

func (c Comments) Less(i, j int) bool {
	return c[i].PK < c[j].PK
}

func (c Comments) Swap(i, j int) {
	c[i], c[j] = c[j], c[i]
}

// Medias orders posts by ascending media ID.
type Medias []instagram.Media

func (m Medias) Len() int {
	return len(m)
}

func (m Medias) Less(i, j int) bool {
	return m[i].PK < m[j].PK
}

func (m Medias) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}
