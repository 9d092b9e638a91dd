package domain

const (
	EventNameQuestionClosed = "question.closed"
	EventNameGameCompleted  = "game.completed"
	EventNameGameAborted    = "game.aborted"
)

// EventQuestionClosed carries the raw per-answer data of a closed window.
type EventQuestionClosed struct {
	RoomCode    string
	QuestionID  string
	Reason      string
	Submissions []AnswerSubmission
}

func (EventQuestionClosed) Name() string { return EventNameQuestionClosed }

type EventGameCompleted struct {
	RoomCode    string
	GameID      string
	Leaderboard Leaderboard
}

func (EventGameCompleted) Name() string { return EventNameGameCompleted }

// EventGameAborted carries the standings at the moment the game was cut short.
type EventGameAborted struct {
	RoomCode    string
	GameID      string
	Reason      string
	Leaderboard Leaderboard
}

func (EventGameAborted) Name() string { return EventNameGameAborted }
