package domain

// Outbound notification event names understood by clients.
const (
	NotifyRoomCreated        = "room.created"
	NotifyLobbyState         = "lobby.state"
	NotifyNewQuestion        = "question.new"
	NotifyPlayerJoined       = "player.joined"
	NotifyPlayerLeft         = "player.left"
	NotifyPlayerDisconnected = "player.disconnected"
	NotifyAnswerSubmitted    = "answer.submitted"
	NotifyQuestionClosed     = "question.closed"
	NotifyProceedingToNext   = "proceeding.next"
	NotifyGameCompleted      = "game.completed"
	NotifyGameEnded          = "game.ended"
	NotifyKicked             = "kicked"
	NotifyError              = "error"
)

type NotificationKind int

const (
	// Broadcast to every connection of the room.
	KindBroadcast NotificationKind = iota
	// Broadcast to every connection of the room except ConnectionID.
	KindBroadcastExcept
	// Send to ConnectionID only.
	KindSend
	// Add ConnectionID to the room's group.
	KindGroupAdd
	// Remove ConnectionID from the room's group.
	KindGroupRemove
)

// Notification is one step of an outbound delivery plan. Plans are built while holding a
// room's lock and delivered after it is released, so Payload must not reference live
// session state.
type Notification struct {
	Kind         NotificationKind
	RoomCode     string
	ConnectionID string
	Event        string
	Payload      any
}
