// Package multicat is a thin argmax wrapper over N independent
// (Tokenizer, TermStore, Scorer, Trainer) cores, one per category, each
// with its own store directory. It introduces no shared state and no new
// scoring invariants beyond what pkg/scorer already guarantees for a
// single core; classification is simply "ask every category's core how
// spam-like this message is against that category's corpus, and report
// the highest-probability category".
package multicat

import (
	"fmt"
	"sort"

	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
	"github.com/zpam/bayescore/pkg/trainer"
)

// Category is one independent classification core: a named label backed
// by its own TermStore, where "spam" means "belongs to this category" and
// "good" means "does not".
type Category struct {
	Name    string
	Store   store.TermStore
	Scorer  *scorer.Scorer
	Trainer *trainer.Trainer
}

// Classifier holds a shared tokenizer (token extraction is category-
// independent) and the set of per-category cores it scores against.
type Classifier struct {
	tok        *tokenizer.Tokenizer
	categories []Category
}

// NewClassifier builds a Classifier over the given categories, sharing one
// Tokenizer across all of them since tokenization does not depend on the
// category being scored.
func NewClassifier(tok *tokenizer.Tokenizer, categories []Category) (*Classifier, error) {
	if len(categories) < 2 {
		return nil, fmt.Errorf("multicat: need at least two categories, got %d", len(categories))
	}
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		if seen[c.Name] {
			return nil, fmt.Errorf("multicat: duplicate category name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return &Classifier{tok: tok, categories: categories}, nil
}

// Result is the outcome of classifying one message.
type Result struct {
	Category    string             // argmax category name
	Probability float64            // that category's own-core probability
	Scores      map[string]float64 // every category's probability, for inspection
}

// Classify tokenizes msg once and scores it against every category's core
// independently, returning the category whose store assigns it the
// highest spam-likeness probability. Ties keep the first category in
// declaration order.
func (c *Classifier) Classify(msg *message.Message) (Result, error) {
	tokens := c.tok.Tokenize(msg)

	scores := make(map[string]float64, len(c.categories))
	best := Result{Probability: -1}

	for _, cat := range c.categories {
		sc, err := cat.Scorer.Score(tokens, cat.Store)
		if err != nil {
			return Result{}, fmt.Errorf("multicat: scoring category %q: %w", cat.Name, err)
		}
		scores[cat.Name] = sc.Probability
		if sc.Probability > best.Probability {
			best = Result{Category: cat.Name, Probability: sc.Probability}
		}
	}

	best.Scores = scores
	return best, nil
}

// Train trains msg into category's core as a positive example. When
// trainOthersAsNegative is set, the same message is also trained as a
// negative example into every other category's core (one-vs-rest), so a
// message that clearly belongs to one category pulls the others' scores
// down rather than leaving them untouched.
func (c *Classifier) Train(msg *message.Message, category string, trainOthersAsNegative bool) error {
	found := false
	for _, cat := range c.categories {
		if cat.Name == category {
			found = true
			if _, err := cat.Trainer.Train(msg, store.Spam, false); err != nil {
				return fmt.Errorf("multicat: training category %q: %w", cat.Name, err)
			}
		} else if trainOthersAsNegative {
			if _, err := cat.Trainer.Train(msg, store.Good, false); err != nil {
				return fmt.Errorf("multicat: negative-training category %q: %w", cat.Name, err)
			}
		}
	}
	if !found {
		return fmt.Errorf("multicat: unknown category %q", category)
	}
	return nil
}

// Categories returns the category names in declaration order.
func (c *Classifier) Categories() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}
	return names
}

// Ranked returns a Result's per-category scores sorted by probability
// descending, for callers that want the full ranking rather than just the
// argmax.
func Ranked(scores map[string]float64) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Close closes every category's underlying TermStore.
func (c *Classifier) Close() error {
	var firstErr error
	for _, cat := range c.categories {
		if err := cat.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
