// Package trainer applies classified messages to a TermStore: initial
// training, selective (mistake-driven) training, and removal with
// reclassification.
package trainer

import (
	"errors"
	"fmt"
	"math"

	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

// Trainer mutates a TermStore from classified messages.
type Trainer struct {
	tok   *tokenizer.Tokenizer
	store store.TermStore
	score *scorer.Scorer
}

// New creates a Trainer over the given tokenizer, store and scorer. The
// scorer is only used by TrainSelective to decide whether a message is
// already classified correctly.
func New(tok *tokenizer.Tokenizer, ts store.TermStore, sc *scorer.Scorer) *Trainer {
	return &Trainer{tok: tok, store: ts, score: sc}
}

// deltaFor returns the per-key count delta for training msg's tokens under
// label: each key's within-message occurrence count, clamped to
// maxRepeats, contributes that many increments.
func deltaFor(tokens []tokenizer.Token, label store.Label, maxRepeats int) map[string]store.Delta {
	counts := make(map[string]int64)
	for _, t := range tokens {
		key := t.Key()
		if counts[key] < int64(maxRepeats) {
			counts[key]++
		}
	}

	deltas := make(map[string]store.Delta, len(counts))
	for key, n := range counts {
		if label == store.Spam {
			deltas[key] = store.Delta{Spam: n}
		} else {
			deltas[key] = store.Delta{Good: n}
		}
	}
	return deltas
}

// mergeDeltas adds src into dst in place.
func mergeDeltas(dst map[string]store.Delta, src map[string]store.Delta) {
	for key, d := range src {
		existing := dst[key]
		existing.Good += d.Good
		existing.Spam += d.Spam
		dst[key] = existing
	}
}

// negate returns a delta map with every component's sign flipped.
func negate(deltas map[string]store.Delta) map[string]store.Delta {
	out := make(map[string]store.Delta, len(deltas))
	for key, d := range deltas {
		out[key] = store.Delta{Good: -d.Good, Spam: -d.Spam}
	}
	return out
}

// Train records msg as label.
//
// If the digest is unregistered: tokenize, submit forward deltas, register
// the digest under label, and return true.
//
// If registered with the same label: a no-op unless forceUpdate, in which
// case the forward deltas are applied again (additive — idempotent only
// once max_word_repeats is already saturating the per-key delta, otherwise
// cumulative, an accepted tradeoff).
//
// If registered with the opposite label: the old label's deltas are
// reversed and the new label's applied in the same BulkUpdate, the
// registry entry is overwritten, and both globals are adjusted via
// RegisterMessage. Always returns true in this case.
func (t *Trainer) Train(msg *message.Message, label store.Label, forceUpdate bool) (bool, error) {
	digest := msg.Digest()

	priorLabel, known, err := t.store.MessageKnown(digest)
	if err != nil {
		return false, err
	}

	if known && priorLabel == label && !forceUpdate {
		return false, nil
	}

	tokens := t.tok.Tokenize(msg)
	maxRepeats := t.score.MaxWordRepeats()
	deltas := deltaFor(tokens, label, maxRepeats)

	if known && priorLabel != label {
		// Reclassification: reverse the prior label's contribution and
		// apply the new one atomically.
		mergeDeltas(deltas, negate(deltaFor(tokens, priorLabel, maxRepeats)))
	}

	now := currentTime()
	if err := t.store.BulkUpdate(deltas, now); err != nil {
		return false, err
	}
	if err := t.store.RegisterMessage(digest, label); err != nil {
		return false, fmt.Errorf("trainer: term counts updated but registry failed: %w", err)
	}
	return true, nil
}

// TrainSelective trains msg only if the scorer is not already confidently
// and correctly classifying it: if the current probability agrees with
// label's direction and |p-0.5| >= min_distance_for_score*2, TrainSelective
// is a no-op. Otherwise it calls Train with forceUpdate=false.
func (t *Trainer) TrainSelective(msg *message.Message, label store.Label) (bool, error) {
	tokens := t.tok.Tokenize(msg)
	sc, err := t.score.Score(tokens, t.store)
	if err != nil {
		return false, err
	}

	agrees := (label == store.Spam) == (sc.Probability >= 0.5)
	confident := math.Abs(sc.Probability-0.5) >= t.score.MinDistanceForScore()*2
	if agrees && confident {
		return false, nil
	}
	return t.Train(msg, label, false)
}

// Remove reverses msg's contribution to the store and unregisters its
// digest. Returns false, nil if the digest was never registered.
func (t *Trainer) Remove(msg *message.Message) (bool, error) {
	digest := msg.Digest()

	priorLabel, err := t.store.UnregisterMessage(digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	tokens := t.tok.Tokenize(msg)
	deltas := negate(deltaFor(tokens, priorLabel, t.score.MaxWordRepeats()))

	now := currentTime()
	if err := t.store.BulkUpdate(deltas, now); err != nil {
		return false, err
	}
	return true, nil
}
