package inference

import (
	"sort"

	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
)

// unrankedPriority is the priority of a module missing from the priority map.
const unrankedPriority = 999

// Select picks the final prediction from preds according to strategy. It
// returns the pick and the strategy actually applied: an unknown strategy
// falls back to [config.StrategyHighestConfidence]. preds is not modified.
// Ties are broken by list order for every strategy.
func Select(preds []*classifier.Prediction, strategy config.Strategy, priorities map[config.ModuleName]int) (*classifier.Prediction, config.Strategy) {
	if !strategy.IsValid() {
		strategy = config.StrategyHighestConfidence
	}
	switch len(preds) {
	case 0:
		return nil, strategy
	case 1:
		return preds[0], strategy
	}

	switch strategy {
	case config.StrategyPriority:
		return byPriority(preds, priorities), strategy
	case config.StrategyVoting:
		return byVote(preds), strategy
	default:
		return mostConfident(preds), strategy
	}
}

func byPriority(preds []*classifier.Prediction, priorities map[config.ModuleName]int) *classifier.Prediction {
	rank := func(p *classifier.Prediction) int {
		if r, ok := priorities[p.Module]; ok {
			return r
		}
		return unrankedPriority
	}
	sorted := append([]*classifier.Prediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i]) < rank(sorted[j])
	})
	return sorted[0]
}

func mostConfident(preds []*classifier.Prediction) *classifier.Prediction {
	var best *classifier.Prediction
	for _, p := range preds {
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	return best
}

// byVote picks the most confident prediction of the word most modules
// agree on. A tie between words falls back to the most confident overall.
func byVote(preds []*classifier.Prediction) *classifier.Prediction {
	groups := make(map[string][]*classifier.Prediction)
	var order []string
	for _, p := range preds {
		if _, ok := groups[p.Word]; !ok {
			order = append(order, p.Word)
		}
		groups[p.Word] = append(groups[p.Word], p)
	}

	top, winners := 0, 0
	var word string
	for _, w := range order {
		switch n := len(groups[w]); {
		case n > top:
			top, winners, word = n, 1, w
		case n == top:
			winners++
		}
	}
	if winners != 1 {
		return mostConfident(preds)
	}
	return mostConfident(groups[word])
}

// rank sorts predictions by confidence descending, keeping list order on ties.
func rank(preds []*classifier.Prediction) []Candidate {
	sorted := append([]*classifier.Prediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	out := make([]Candidate, len(sorted))
	for i, p := range sorted {
		out[i] = candidateOf(p)
	}
	return out
}
