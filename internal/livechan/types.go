package livechan

import (
	"context"

	"github.com/park285/Cheese-chess-client/pkg/chessdto"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UpdateCallback receives game_update pushes for the subscribed game.
type UpdateCallback func(update *chessdto.MoveOutcome)

type StateCallback func(state State)

// ResubscribeCallback fires after join_game was (re)emitted on a fresh connection.
type ResubscribeCallback func(gameID string)

// HeaderProvider injects headers into the websocket handshake.
type HeaderProvider func() map[string]string

// Subscriber is the part of the channel the game core drives.
type Subscriber interface {
	Subscribe(ctx context.Context, gameID string) error
	Unsubscribe(ctx context.Context, gameID string) error
}

const (
	eventJoinGame   = "join_game"
	eventLeaveGame  = "leave_game"
	eventGameUpdate = "game_update"
)
