package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, EditDistance("price", "price"))
	assert.Equal(t, 1, EditDistance("price", "prince"))
	assert.Equal(t, 1, EditDistance("price", "pirce"))
	assert.Equal(t, 3, EditDistance("price", "pierce"))
	assert.Equal(t, 5, EditDistance("", "price"))
	assert.Equal(t, 3, EditDistance("кот", ""))
	assert.Equal(t, 1, EditDistance("цена", "ценна"))
}

func TestContainsFuzzy(t *testing.T) {
	assert.True(t, ContainsFuzzy("What's the PRICE?", "price"))
	assert.True(t, ContainsFuzzy("prices please", "price"))
	assert.True(t, ContainsFuzzy("whats the pirce", "price"))
	assert.True(t, ContainsFuzzy("сколько стоит? ценна?", "цена"))
	assert.False(t, ContainsFuzzy("nice picture", "price"))
	assert.False(t, ContainsFuzzy("", "price"))
	assert.False(t, ContainsFuzzy("anything", ""))

	// short words must match exactly
	assert.True(t, ContainsFuzzy("dm me", "dm"))
	assert.False(t, ContainsFuzzy("dn me", "dm"))
}
