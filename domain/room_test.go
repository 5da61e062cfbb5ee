package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectRoomName(t *testing.T) {
	req := require.New(t)

	// The same pair must resolve to the same room whoever initiates.
	req.Equal("dm_alice_bob", DirectRoomName("alice", "bob"))
	req.Equal("dm_alice_bob", DirectRoomName("bob", "alice"))

	req.Equal("dm_bob_charlie", DirectRoomName("charlie", "bob"))
	req.Equal("dm_alice_alice", DirectRoomName("alice", "alice"))
}

func TestIsDirectRoom(t *testing.T) {
	req := require.New(t)

	req.True(IsDirectRoom("dm_alice_bob"))
	req.False(IsDirectRoom("general"))
	req.False(IsDirectRoom("dmitri"))
	req.False(IsDirectRoom(""))
}
