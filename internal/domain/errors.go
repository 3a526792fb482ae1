package domain

import "errors"

var (
	// ErrRoomNotFound is returned when the room id is unknown to the registry.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed the participant cap.
	ErrRoomFull = errors.New("room is full")
	// ErrBattleAlreadyStarted rejects joins and re-starts once a battle is active.
	ErrBattleAlreadyStarted = errors.New("battle already started")
	// ErrBattleAlreadyEnded rejects joins to a finished or expired room.
	ErrBattleAlreadyEnded = errors.New("battle has ended")
	// ErrNotCreator is returned when someone other than the room creator tries to start.
	ErrNotCreator = errors.New("only the room creator can start the battle")
	// ErrTooFewPlayers is returned when a start is attempted below the minimum.
	ErrTooFewPlayers = errors.New("not enough players to start")
	// ErrNotActive rejects answer submissions outside an active battle.
	ErrNotActive = errors.New("battle is not active")
	// ErrOutOfOrderAnswer rejects submissions whose index does not match the
	// participant's progress, so retried duplicates are detectable by the caller.
	ErrOutOfOrderAnswer = errors.New("answer out of order")
	// ErrAlreadyFinished signals an idempotent no-op on a finished participant or room.
	ErrAlreadyFinished = errors.New("already finished")
	// ErrParticipantNotFound is returned when a user acts in a room they never joined.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrQuestionSetNotFound indicates the question content could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
)
