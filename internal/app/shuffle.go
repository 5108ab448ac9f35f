package app

import (
	"math/rand"

	"ifrs17-training-service/internal/domain"
)

// shuffleQuestions returns a uniform Fisher-Yates permutation of a module's
// questions. Each entry keeps its original index so correctness checks and
// answer records stay valid after reordering. Options within a question are
// never reordered.
func shuffleQuestions(rng *rand.Rand, questions []domain.Question) []domain.ShuffledQuestion {
	view := make([]domain.ShuffledQuestion, len(questions))
	for i, q := range questions {
		view[i] = domain.ShuffledQuestion{Question: q, OriginalIndex: i}
	}
	for i := len(view) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		view[i], view[j] = view[j], view[i]
	}
	return view
}
