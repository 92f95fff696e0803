package forum

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestUserPassword(t *testing.T) {
	user := NewUser("john", "john@doe.com", false)
	_, err := uuid.Parse(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Created, user.Updated)

	require.NoError(t, user.SetPassword("123", bcrypt.MinCost))
	cost, err := bcrypt.Cost(user.Hash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	ok, err := user.PasswordMatches("123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = user.PasswordMatches("1234")
	require.NoError(t, err)
	assert.False(t, ok)

	user.Sanitize()
	assert.Nil(t, user.Hash)
	_, err = user.PasswordMatches("123")
	assert.Error(t, err)
}
