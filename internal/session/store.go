// Package session keeps per-conversation history and serializes turns that
// target the same conversation.
package session

import (
	"context"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// MaxTurns is the number of turns kept per conversation. Older turns are
// evicted first.
const MaxTurns = 20

// Store holds conversation history keyed by SessionKey.
type Store interface {
	// Get returns the stored turns, oldest first. Unknown keys yield an
	// empty slice.
	Get(ctx context.Context, key string) ([]chat.Turn, error)
	// Append adds turns in order and keeps only the most recent MaxTurns.
	Append(ctx context.Context, key string, turns ...chat.Turn) error
	// Reset drops all turns for key. Resetting an unknown key is not an error.
	Reset(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionKey combines a character id and a caller session id. Two sessions
// with the same character never share history.
func SessionKey(characterID, sessionID string) string {
	return characterID + ":" + sessionID
}

func keepRecent(turns []chat.Turn) []chat.Turn {
	if len(turns) <= MaxTurns {
		return turns
	}
	return append([]chat.Turn(nil), turns[len(turns)-MaxTurns:]...)
}
