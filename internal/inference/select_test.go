package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
)

func pred(module config.ModuleName, word string, conf float64) *classifier.Prediction {
	return &classifier.Prediction{Module: module, Word: word, DisplayName: word, Confidence: conf}
}

var defaultPriorities = map[config.ModuleName]int{
	config.ModuleRecognition: 1,
	config.ModuleDetection:   2,
	config.ModuleTranslation: 3,
}

func TestSelect_Voting(t *testing.T) {
	preds := []*classifier.Prediction{
		pred(config.ModuleDetection, "A", 0.9),
		pred(config.ModuleRecognition, "A", 0.6),
		pred(config.ModuleTranslation, "B", 0.95),
	}

	got, strategy := Select(preds, config.StrategyVoting, defaultPriorities)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.Word, "two votes beat one")
	assert.Equal(t, 0.9, got.Confidence, "most confident within the winning group")
	assert.Equal(t, config.StrategyVoting, strategy)
}

func TestSelect_VotingTieFallsBackToConfidence(t *testing.T) {
	preds := []*classifier.Prediction{
		pred(config.ModuleDetection, "A", 0.7),
		pred(config.ModuleRecognition, "B", 0.8),
		pred(config.ModuleTranslation, "C", 0.75),
	}

	got, _ := Select(preds, config.StrategyVoting, defaultPriorities)
	assert.Equal(t, "B", got.Word)
}

func TestSelect_PriorityVersusConfidence(t *testing.T) {
	x := pred(config.ModuleDetection, "X", 0.95)
	y := pred(config.ModuleRecognition, "Y", 0.61)
	priorities := map[config.ModuleName]int{
		config.ModuleDetection:   2,
		config.ModuleRecognition: 1,
	}
	preds := []*classifier.Prediction{x, y}

	got, _ := Select(preds, config.StrategyPriority, priorities)
	assert.Same(t, y, got, "lower priority number wins despite lower confidence")

	got, _ = Select(preds, config.StrategyHighestConfidence, priorities)
	assert.Same(t, x, got)
}

func TestSelect_TiesKeepListOrder(t *testing.T) {
	first := pred(config.ModuleDetection, "A", 0.8)
	second := pred(config.ModuleTranslation, "B", 0.8)

	got, _ := Select([]*classifier.Prediction{first, second}, config.StrategyHighestConfidence, nil)
	assert.Same(t, first, got)

	same := map[config.ModuleName]int{config.ModuleDetection: 1, config.ModuleTranslation: 1}
	got, _ = Select([]*classifier.Prediction{second, first}, config.StrategyPriority, same)
	assert.Same(t, second, got)
}

func TestSelect_MissingPriorityRanksLast(t *testing.T) {
	ranked := pred(config.ModuleTranslation, "A", 0.7)
	unranked := pred(config.ModuleDetection, "B", 0.9)
	priorities := map[config.ModuleName]int{config.ModuleTranslation: 5}

	got, _ := Select([]*classifier.Prediction{unranked, ranked}, config.StrategyPriority, priorities)
	assert.Same(t, ranked, got)
}

func TestSelect_UnknownStrategy(t *testing.T) {
	preds := []*classifier.Prediction{
		pred(config.ModuleRecognition, "hello", 0.7),
		pred(config.ModuleDetection, "A", 0.85),
	}

	got, strategy := Select(preds, "majority", defaultPriorities)
	require.NotNil(t, got)
	assert.Equal(t, "A", got.Word)
	assert.Equal(t, config.StrategyHighestConfidence, strategy)
}

func TestSelect_EmptyAndSingle(t *testing.T) {
	got, _ := Select(nil, config.StrategyPriority, defaultPriorities)
	assert.Nil(t, got)

	only := pred(config.ModuleTranslation, "Y", 0.71)
	for _, s := range []config.Strategy{config.StrategyPriority, config.StrategyHighestConfidence, config.StrategyVoting} {
		got, _ := Select([]*classifier.Prediction{only}, s, defaultPriorities)
		assert.Same(t, only, got, s)
	}
}

func TestSelect_Idempotent(t *testing.T) {
	preds := []*classifier.Prediction{
		pred(config.ModuleTranslation, "B", 0.95),
		pred(config.ModuleDetection, "A", 0.9),
		pred(config.ModuleRecognition, "A", 0.6),
	}
	snapshot := append([]*classifier.Prediction(nil), preds...)

	for _, s := range []config.Strategy{config.StrategyPriority, config.StrategyHighestConfidence, config.StrategyVoting} {
		first, _ := Select(preds, s, defaultPriorities)
		second, _ := Select(preds, s, defaultPriorities)
		assert.Same(t, first, second, s)
		assert.Equal(t, snapshot, preds, "input must not be reordered")
	}
}

func TestRank(t *testing.T) {
	ranked := rank([]*classifier.Prediction{
		pred(config.ModuleDetection, "A", 0.7),
		pred(config.ModuleRecognition, "hello", 0.9),
		pred(config.ModuleTranslation, "Y", 0.7),
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, "hello", ranked[0].Word)
	assert.Equal(t, config.ModuleDetection, ranked[1].Module)
	assert.Equal(t, config.ModuleTranslation, ranked[2].Module)
}
