// Package scorer combines per-term spam probabilities from the TermStore
// into a single message probability, via a log-space Bayesian chain or
// Fisher's inverse chi-square combination depending on scoring mode.
package scorer

import (
	"math"
	"sort"

	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

// ScoringMode selects the combination formula.
type ScoringMode string

const (
	ModeNormal   ScoringMode = "normal"
	ModeGraham   ScoringMode = "graham"
	ModeRobinson ScoringMode = "robinson"
)

// Config configures scoring.
type Config struct {
	SpamThreshold       float64
	MinWordCount        int64
	NewWordScore        float64
	TermsForScore       int
	MaxWordRepeats      int
	ExtendTopTerms      bool
	MinDistanceForScore float64
	ScoringMode         ScoringMode
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		SpamThreshold:       0.9,
		MinWordCount:        5,
		NewWordScore:        0.4,
		TermsForScore:       15,
		MaxWordRepeats:      2,
		ExtendTopTerms:      false,
		MinDistanceForScore: 0.1,
		ScoringMode:         ModeNormal,
	}
}

// Score is the result of scoring one message.
type Score struct {
	Probability float64
	IsSpam      bool
	Confidence  float64
	TermsUsed   int
	TopTerms    []string
}

// Scorer reads the TermStore to combine selected term probabilities into a
// message score. Holds only a read reference; never mutates the store.
type Scorer struct {
	cfg Config
}

// MinDistanceForScore exposes the configured threshold so callers (e.g.
// Trainer.TrainSelective) can judge confidence without duplicating config.
func (s *Scorer) MinDistanceForScore() float64 { return s.cfg.MinDistanceForScore }

// MaxWordRepeats exposes the configured per-message repetition cap so
// Trainer can clamp training deltas the same way Score clamps lookups.
func (s *Scorer) MaxWordRepeats() int { return s.cfg.MaxWordRepeats }

// New creates a Scorer.
func New(cfg Config) *Scorer {
	if cfg.ScoringMode == "" {
		cfg.ScoringMode = ModeNormal
	}
	if cfg.TermsForScore < 1 {
		cfg.TermsForScore = 1
	}
	if cfg.MaxWordRepeats < 1 {
		cfg.MaxWordRepeats = 1
	}
	return &Scorer{cfg: cfg}
}

// TermProbability is the per-term probability: new_word_score below
// min_word_count, otherwise the corpus-imbalance-normalized raw
// probability clamped to [0.01, 0.99].
func (s *Scorer) TermProbability(rec store.TermRecord, good, spam int64) float64 {
	if rec.GoodCount+rec.SpamCount < s.cfg.MinWordCount {
		return s.cfg.NewWordScore
	}

	goodTotal := float64(good)
	if goodTotal < 1 {
		goodTotal = 1
	}
	spamTotal := float64(spam)
	if spamTotal < 1 {
		spamTotal = 1
	}

	spamRate := float64(rec.SpamCount) / spamTotal
	goodRate := float64(rec.GoodCount) / goodTotal

	var raw float64
	if spamRate+goodRate == 0 {
		raw = 0.5
	} else {
		raw = spamRate / (spamRate + goodRate)
	}

	if raw < 0.01 {
		raw = 0.01
	}
	if raw > 0.99 {
		raw = 0.99
	}
	return raw
}

type candidate struct {
	key      string
	prob     float64
	distance float64
	repeats  int
}

// Score tokenizes msg's already-extracted tokens, looks each key up in s
// and returns the combined Score. Callers supply the token stream (from
// pkg/tokenizer) rather than a raw message so scoring and training can
// share one tokenization pass.
func (s *Scorer) Score(tokens []tokenizer.Token, ts store.TermStore) (Score, error) {
	good, spam, err := ts.Globals()
	if err != nil {
		return Score{}, err
	}

	counts := make(map[string]int)
	order := make([]string, 0, len(tokens))
	for _, t := range tokens {
		key := t.Key()
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		if counts[key] < s.cfg.MaxWordRepeats {
			counts[key]++
		}
	}

	var candidates []candidate
	for _, key := range order {
		rec, ok, err := ts.Get(key)
		if err != nil {
			return Score{}, err
		}
		if !ok {
			rec = store.TermRecord{}
		}

		prob := s.TermProbability(rec, good, spam)
		distance := math.Abs(prob - 0.5)
		if distance < s.cfg.MinDistanceForScore {
			continue
		}

		candidates = append(candidates, candidate{key: key, prob: prob, distance: distance, repeats: counts[key]})
	}

	selected := s.selectTopTerms(candidates)

	if len(selected) == 0 {
		return Score{Probability: s.cfg.NewWordScore, IsSpam: s.cfg.NewWordScore >= s.cfg.SpamThreshold, TermsUsed: 0}, nil
	}

	prob := s.combine(selected)

	var confidence float64
	topTerms := make([]string, 0, len(selected))
	for _, c := range selected {
		if c.distance*2 > confidence {
			confidence = c.distance * 2
		}
		topTerms = append(topTerms, c.key)
	}
	if confidence > 1 {
		confidence = 1
	}

	return Score{
		Probability: prob,
		IsSpam:      prob >= s.cfg.SpamThreshold,
		Confidence:  confidence,
		TermsUsed:   len(selected),
		TopTerms:    topTerms,
	}, nil
}

// selectTopTerms sorts candidates by |p-0.5| descending and takes the top
// terms_for_score, extending on ties when ExtendTopTerms is set. Ties are
// broken lexicographically by key for determinism.
func (s *Scorer) selectTopTerms(candidates []candidate) []candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance > candidates[j].distance
		}
		return candidates[i].key < candidates[j].key
	})

	if len(candidates) <= s.cfg.TermsForScore {
		return candidates
	}

	cut := s.cfg.TermsForScore
	if s.cfg.ExtendTopTerms {
		boundary := candidates[cut-1].distance
		for cut < len(candidates) && candidates[cut].distance == boundary {
			cut++
		}
	}
	return candidates[:cut]
}

// combine applies the configured scoring mode over the selected terms,
// expanding each term's repetition count into that many independent
// factors in the combination.
func (s *Scorer) combine(selected []candidate) float64 {
	switch s.cfg.ScoringMode {
	case ModeRobinson:
		return s.combineRobinson(selected)
	default:
		return s.combineBayesChain(selected)
	}
}

// combineBayesChain implements normal/graham: P = ∏p / (∏p + ∏(1-p)),
// computed in log-space, grounded in bayes.go ClassifyText's
// logSpamProb/logHamProb accumulation.
func (s *Scorer) combineBayesChain(selected []candidate) float64 {
	var logSpam, logHam float64
	for _, c := range selected {
		for i := 0; i < c.repeats; i++ {
			logSpam += math.Log(c.prob)
			logHam += math.Log(1 - c.prob)
		}
	}

	// Normalize by subtracting the larger log to avoid double underflow
	// when exponentiating back.
	m := math.Max(logSpam, logHam)
	spamExp := math.Exp(logSpam - m)
	hamExp := math.Exp(logHam - m)

	if spamExp+hamExp == 0 {
		return 0.5
	}
	return spamExp / (spamExp + hamExp)
}

// combineRobinson implements Fisher's combined probability test:
// P = (1 + H - S) / 2, where H and S are the chi-square tail
// probabilities with 2n degrees of freedom over ln(p) and ln(1-p).
func (s *Scorer) combineRobinson(selected []candidate) float64 {
	n := 0
	var sumLnP, sumLnQ float64
	for _, c := range selected {
		for i := 0; i < c.repeats; i++ {
			n++
			sumLnP += math.Log(c.prob)
			sumLnQ += math.Log(1 - c.prob)
		}
	}
	if n == 0 {
		return 0.5
	}

	spamChi := -2 * sumLnP
	hamChi := -2 * sumLnQ
	df := 2 * n

	sVal := chiSquareSurvival(spamChi, df)
	hVal := chiSquareSurvival(hamChi, df)

	return (1 + sVal - hVal) / 2
}

// chiSquareSurvival returns P(X > x) for a chi-square distribution with df
// (even) degrees of freedom, which for Fisher's method has the closed form
// sum_{i=0}^{df/2-1} e^-x/2 * (x/2)^i / i!.
func chiSquareSurvival(x float64, df int) float64 {
	if x <= 0 {
		return 1
	}
	m := df / 2
	term := math.Exp(-x / 2)
	sum := term
	for i := 1; i < m; i++ {
		term *= (x / 2) / float64(i)
		sum += term
	}
	if sum > 1 {
		sum = 1
	}
	if sum < 0 {
		sum = 0
	}
	return sum
}
