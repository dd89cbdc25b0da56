package questions

import (
	"context"

	"quizroom-service/internal/domain"
)

// StaticBank is the built-in fallback question source. It ignores the topic
// and serves general-knowledge sets keyed by difficulty, so a session can
// always be provisioned even when the primary bank is unreachable.
type StaticBank struct{}

func NewStaticBank() *StaticBank {
	return &StaticBank{}
}

func (b *StaticBank) Generate(_ context.Context, _ string, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	pool, ok := staticSets[difficulty]
	if !ok {
		pool = staticSets[domain.DifficultyMedium]
	}
	if count > len(pool) {
		count = len(pool)
	}
	out := make([]domain.Question, count)
	copy(out, pool)
	return out, nil
}

var staticSets = map[domain.Difficulty][]domain.Question{
	domain.DifficultyEasy: {
		{
			Text:          "What is 7 + 5?",
			Options:       []string{"10", "11", "12", "13"},
			CorrectOption: "12",
			TimeLimitSec:  20,
		},
		{
			Text:          "Which planet is known as the Red Planet?",
			Options:       []string{"Venus", "Mars", "Jupiter", "Mercury"},
			CorrectOption: "Mars",
			TimeLimitSec:  20,
		},
		{
			Text:          "How many days are in a leap year?",
			Options:       []string{"364", "365", "366", "367"},
			CorrectOption: "366",
			TimeLimitSec:  20,
		},
		{
			Text:          "What color do you get by mixing blue and yellow?",
			Options:       []string{"Purple", "Orange", "Green", "Brown"},
			CorrectOption: "Green",
			TimeLimitSec:  20,
		},
		{
			Text:          "Which ocean is the largest?",
			Options:       []string{"Atlantic", "Indian", "Arctic", "Pacific"},
			CorrectOption: "Pacific",
			TimeLimitSec:  20,
		},
	},
	domain.DifficultyMedium: {
		{
			Text:          "In which year did the Berlin Wall fall?",
			Options:       []string{"1987", "1989", "1991", "1993"},
			CorrectOption: "1989",
			TimeLimitSec:  15,
		},
		{
			Text:          "What is the chemical symbol for gold?",
			Options:       []string{"Go", "Gd", "Au", "Ag"},
			CorrectOption: "Au",
			TimeLimitSec:  15,
		},
		{
			Text:          "Which language has the most native speakers?",
			Options:       []string{"English", "Hindi", "Spanish", "Mandarin Chinese"},
			CorrectOption: "Mandarin Chinese",
			TimeLimitSec:  15,
		},
		{
			Text:          "How many strings does a standard violin have?",
			Options:       []string{"4", "5", "6", "7"},
			CorrectOption: "4",
			TimeLimitSec:  15,
		},
		{
			Text:          "Which country hosted the first modern Olympic Games?",
			Options:       []string{"France", "Greece", "Italy", "United Kingdom"},
			CorrectOption: "Greece",
			TimeLimitSec:  15,
		},
	},
	domain.DifficultyHard: {
		{
			Text:          "What is the time complexity of binary search?",
			Options:       []string{"O(n)", "O(n log n)", "O(log n)", "O(1)"},
			CorrectOption: "O(log n)",
			TimeLimitSec:  10,
		},
		{
			Text:          "Which element has the highest melting point?",
			Options:       []string{"Tungsten", "Titanium", "Osmium", "Iridium"},
			CorrectOption: "Tungsten",
			TimeLimitSec:  10,
		},
		{
			Text:          "Who proved the incompleteness theorems?",
			Options:       []string{"Alan Turing", "Kurt Gödel", "David Hilbert", "Bertrand Russell"},
			CorrectOption: "Kurt Gödel",
			TimeLimitSec:  10,
		},
		{
			Text:          "What is the only even prime number?",
			Options:       []string{"0", "1", "2", "4"},
			CorrectOption: "2",
			TimeLimitSec:  10,
		},
		{
			Text:          "In which decade was the first transatlantic telegraph cable completed?",
			Options:       []string{"1840s", "1850s", "1860s", "1870s"},
			CorrectOption: "1850s",
			TimeLimitSec:  10,
		},
	},
}
