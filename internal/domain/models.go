package domain

import "time"

// RoomStatus tracks the battle lifecycle. Transitions are forward-only:
// Waiting -> Active -> Finished, with Waiting -> Expired for abandoned lobbies.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
	StatusExpired  RoomStatus = "expired"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// QuestionSet is the ordered question content a battle runs against.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// AnswerSlot records a single answered question for one participant.
type AnswerSlot struct {
	ChosenOption string    `json:"chosenOption"`
	Correct      bool      `json:"correct"`
	ElapsedMs    int64     `json:"elapsedMs"`
	AnsweredAt   time.Time `json:"answeredAt"`
}

// Participant is a user's transient membership and progress state in one room.
type Participant struct {
	UserID        string
	DisplayName   string
	ConnectionRef string // opaque transport handle, stored for lookup only
	Progress      int
	Score         int
	Answers       []AnswerSlot
	Ready         bool
	JoinedAt      time.Time
}

// ParticipantView is the broadcast-friendly projection of a Participant.
type ParticipantView struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Progress    int    `json:"progress"`
	Score       int    `json:"score"`
	Ready       bool   `json:"ready"`
}

// RoomSnapshot is a point-in-time copy of room state, safe to read after the
// room lock is released.
type RoomSnapshot struct {
	ID              string            `json:"id"`
	Status          RoomStatus        `json:"status"`
	Active          bool              `json:"active"`
	CreatorID       string            `json:"creatorId"`
	Participants    []ParticipantView `json:"participants"`
	TotalQuestions  int               `json:"totalQuestions"`
	MaxParticipants int               `json:"maxParticipants"`
	CreatedAt       time.Time         `json:"createdAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
}

// RoomSummary is the lightweight registry listing for operational visibility.
type RoomSummary struct {
	ID               string     `json:"id"`
	Status           RoomStatus `json:"status"`
	Active           bool       `json:"active"`
	ParticipantCount int        `json:"participantCount"`
	MaxParticipants  int        `json:"maxParticipants"`
}

// AnswerOutcome summarizes one accepted submission for a single user.
type AnswerOutcome struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
	Finished      bool `json:"finished"`
	AllFinished   bool `json:"allFinished"`
}

// RankedResult is one participant's line in the final report.
type RankedResult struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalQuestions int    `json:"totalQuestions"`
	TotalElapsedMs int64  `json:"totalElapsedMs"`
}

// BattleReport is the final ranked summary handed to the result sink and the
// broadcast layer once per finished room.
type BattleReport struct {
	RoomID  string         `json:"roomId"`
	Reason  string         `json:"reason"`
	Results []RankedResult `json:"results"`
	EndedAt time.Time      `json:"endedAt"`
}
