package domain

import "time"

// Difficulty tiers for question selection.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty tier.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Status is the coarse session lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Phase is the per-question step while a session is active.
type Phase string

const (
	PhaseAnswering         Phase = "answering"
	PhaseShowingAnswer     Phase = "showing_answer"
	PhaseShowingScoreboard Phase = "showing_scoreboard"
)

func (p Phase) String() string {
	return string(p)
}

// Question models an MCQ question with one correct option.
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
	TimeLimitSec  int      `json:"timeLimitSec"`
}

// IsCorrect checks a chosen option against the correct one by exact string
// equality. No case or whitespace normalization is applied; the correct option
// is required to equal one of Options by value.
func (q Question) IsCorrect(option string) bool {
	return option == q.CorrectOption
}

// Answer is one player's recorded submission for one question.
type Answer struct {
	Option  string `json:"option"`
	Correct bool   `json:"correct"`
	TimeMs  int64  `json:"timeMs"`
	Score   int    `json:"score"`
}

// Player represents a participant and their accumulated score.
type Player struct {
	ID       string         `json:"id"`
	Nickname string         `json:"nickname"`
	IsHost   bool           `json:"isHost"`
	Score    int            `json:"score"`
	JoinedAt time.Time      `json:"joinedAt"`
	Answers  map[int]Answer `json:"answers"`
}

// GameState holds the live per-question timing and phase shared with every
// participant. Start and end times are epoch milliseconds so clients can derive
// a countdown without clock negotiation.
type GameState struct {
	Phase              Phase `json:"phase"`
	QuestionStartMs    int64 `json:"questionStartTime"`
	QuestionEndMs      int64 `json:"questionEndTime"`
	AllPlayersAnswered bool  `json:"allPlayersAnswered"`
	// AwaitingHostAction is a UI hint only; it never gates a transition.
	AwaitingHostAction bool `json:"awaitingHostAction"`
}

// Session is one quiz instance: one host, N questions, M players.
type Session struct {
	ID             string            `json:"id"`
	JoinCode       string            `json:"joinCode"`
	Topic          string            `json:"topic"`
	Difficulty     Difficulty        `json:"difficulty"`
	Questions      []Question        `json:"questions"`
	CurrentIndex   int               `json:"currentQuestionIndex"`
	Status         Status            `json:"status"`
	HostID         string            `json:"hostId"`
	CreatedAt      time.Time         `json:"createdAt"`
	Players        map[string]Player `json:"players"`
	TotalQuestions int               `json:"totalQuestions"`
	Completed      bool              `json:"completed"`
	Game           *GameState        `json:"gameState,omitempty"`
}

// CurrentQuestion returns the question at CurrentIndex, if any.
func (s *Session) CurrentQuestion() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// AllAnswered reports whether every current player has an answer recorded for
// the current question.
func (s *Session) AllAnswered() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if _, ok := p.Answers[s.CurrentIndex]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so store subscribers can read a snapshot without
// racing concurrent updates.
func (s Session) Clone() Session {
	out := s
	out.Questions = append([]Question(nil), s.Questions...)
	out.Players = make(map[string]Player, len(s.Players))
	for id, p := range s.Players {
		cp := p
		cp.Answers = make(map[int]Answer, len(p.Answers))
		for idx, a := range p.Answers {
			cp.Answers[idx] = a
		}
		out.Players[id] = cp
	}
	if s.Game != nil {
		g := *s.Game
		out.Game = &g
	}
	return out
}
