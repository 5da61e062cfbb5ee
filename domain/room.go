package domain

import "strings"

// directPrefix is reserved: user-chosen room names starting with it would
// collide with derived direct-message rooms.
const directPrefix = "dm"

const directSeparator = "_"

// DirectRoomName derives the canonical room name for a one-to-one
// conversation between two users. It is commutative: the usernames are
// sorted lexicographically before joining, so both participants resolve
// to the same room.
func DirectRoomName(userA, userB string) string {
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}
	return strings.Join([]string{directPrefix, first, second}, directSeparator)
}

// IsDirectRoom reports whether a room name belongs to the reserved
// direct-message namespace.
func IsDirectRoom(name string) bool {
	return strings.HasPrefix(name, directPrefix+directSeparator)
}
