package repositories

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func newTestUserRepository(t *testing.T) IUserRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db)
}

func TestCreateAndGetUser(t *testing.T) {
	req := require.New(t)
	repository := newTestUserRepository(t)

	userID, err := repository.CreateUser("alice", "alice@example.com", "$argon2id$fake")
	req.NoError(err)
	req.NotEmpty(userID)

	user, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(userID, user.ID)
	req.Equal("alice", user.Username)
	req.Equal("$argon2id$fake", user.PasswordHash)
	req.Equal([]string{"user"}, user.Roles)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	repository := newTestUserRepository(t)

	_, err := repository.CreateUser("alice", "alice@example.com", "hash")
	req.NoError(err)

	_, err = repository.CreateUser("alice2", "alice@example.com", "hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	req := require.New(t)
	repository := newTestUserRepository(t)

	_, err := repository.CreateUser("alice", "alice@example.com", "hash")
	req.NoError(err)

	_, err = repository.CreateUser("alice", "other@example.com", "hash")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestListUsers(t *testing.T) {
	req := require.New(t)
	repository := newTestUserRepository(t)

	users, err := repository.ListUsers()
	req.NoError(err)
	req.Empty(users)

	_, err = repository.CreateUser("alice", "alice@example.com", "hash")
	req.NoError(err)
	_, err = repository.CreateUser("bob", "bob@example.com", "hash")
	req.NoError(err)

	users, err = repository.ListUsers()
	req.NoError(err)
	req.Len(users, 2)

	// The username index entries must not leak into the listing
	usernames := []string{users[0].Username, users[1].Username}
	req.ElementsMatch([]string{"alice", "bob"}, usernames)
	for _, user := range users {
		req.NotEmpty(user.ID)
		req.NotEmpty(user.Email)
	}
}

func TestGetUserByEmail_Unknown(t *testing.T) {
	req := require.New(t)
	repository := newTestUserRepository(t)

	_, err := repository.GetUserByEmail("ghost@example.com")
	req.Error(err)
}
