package model

import "time"

// State состояние автомата контроля доступа
type State int

const (
	StateWaitingForFace State = iota
	StateEvaluating
	StateDisplayingOutcome
	StateClosed
)

// String краткое описание
func (m State) String() string {
	switch m {
	case StateWaitingForFace:
		return "waiting"
	case StateEvaluating:
		return "evaluating"
	case StateDisplayingOutcome:
		return "outcome"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Outcome итог одной попытки прохода
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeMaskRejected
	OutcomeIdentityAccepted
	OutcomeRetryExhausted
)

// String краткое описание
func (m Outcome) String() string {
	switch m {
	case OutcomeMaskRejected:
		return "mask"
	case OutcomeIdentityAccepted:
		return "accepted"
	case OutcomeRetryExhausted:
		return "denied"
	}
	return "none"
}

// Cue звуковой сигнал
type Cue string

const (
	CueMask        Cue = "mask"
	CueCorrect     Cue = "correct"
	CueTemperature Cue = "temperature-alert"
	CueDenied      Cue = "denied"
)

// Cues полный набор звуковых сигналов
var Cues = []Cue{CueMask, CueCorrect, CueTemperature, CueDenied}

// OutcomeNotice сообщение о результате попытки для отображения
type OutcomeNotice struct {
	CreateAt    time.Time
	Outcome     Outcome
	Name        string
	Temperature *float64
	// Событие записано в журнал
	Saved bool
}

// Snapshot текущее состояние терминала
type Snapshot struct {
	State    State
	Last     *OutcomeNotice
	Retries  int
	Readings int
	Caption  string
}
