package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert := assert.New(t)

	t.Run("Prefixed and bare forms agree", func(t *testing.T) {
		a, err := Parse("user_42")
		assert.Nil(err)
		b, err := Parse("42")
		assert.Nil(err)
		assert.Equal(a, b)
		assert.Equal(ID("user_42"), a)
	})

	t.Run("Whitespace and repeated prefixes", func(t *testing.T) {
		id, err := Parse("  user_user_42 ")
		assert.Nil(err)
		assert.Equal(ID("user_42"), id)
	})

	t.Run("Empty input", func(t *testing.T) {
		_, err := Parse("")
		assert.ErrorIs(err, ErrorEmptyID)
		_, err = Parse("   ")
		assert.ErrorIs(err, ErrorEmptyID)
		_, err = Parse("user_")
		assert.ErrorIs(err, ErrorEmptyID)
	})
}

func TestVariants(t *testing.T) {
	assert := assert.New(t)

	id := MustParse("42")
	assert.Equal([]string{"user_42", "42"}, id.Variants())
	assert.Equal("42", id.Bare())
	assert.Nil(ID("").Variants())
	assert.Equal([]string{"user_1", "1", "user_2", "2"}, VariantsOf(MustParse("1"), MustParse("user_2")))
}

func TestParseAll(t *testing.T) {
	assert := assert.New(t)

	ids, err := ParseAll([]string{"42", "user_7", "user_42", "7"})
	assert.Nil(err)
	assert.Equal([]ID{"user_42", "user_7"}, ids)

	_, err = ParseAll([]string{"42", ""})
	assert.ErrorIs(err, ErrorEmptyID)
}
