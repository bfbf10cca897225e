package scorer

import (
	"math"
	"testing"

	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

// fakeStore is an in-memory TermStore stub for scorer unit tests, covering
// only the calls Score makes (Get, Globals).
type fakeStore struct {
	records map[string]store.TermRecord
	good    int64
	spam    int64
}

func newFakeStore(good, spam int64) *fakeStore {
	return &fakeStore{records: make(map[string]store.TermRecord), good: good, spam: spam}
}

func (f *fakeStore) set(key string, g, s int64) {
	f.records[key] = store.TermRecord{GoodCount: g, SpamCount: s}
}

func (f *fakeStore) Get(key string) (store.TermRecord, bool, error) {
	rec, ok := f.records[key]
	return rec, ok, nil
}
func (f *fakeStore) BulkUpdate(map[string]store.Delta, int64) error           { return nil }
func (f *fakeStore) MessageKnown(string) (store.Label, bool, error)           { return 0, false, nil }
func (f *fakeStore) RegisterMessage(string, store.Label) error                { return nil }
func (f *fakeStore) UnregisterMessage(string) (store.Label, error)            { return 0, store.ErrNotFound }
func (f *fakeStore) Globals() (int64, int64, error)                          { return f.good, f.spam, nil }
func (f *fakeStore) Cleanup(int64, int, int64) (int64, error)                { return 0, nil }
func (f *fakeStore) Purge(int64) (int64, error)                              { return 0, nil }
func (f *fakeStore) Export(func(store.Entry) error) error                    { return nil }
func (f *fakeStore) Import([]store.Entry, int64) (int64, error)              { return 0, nil }
func (f *fakeStore) Vacuum() error                                           { return nil }
func (f *fakeStore) Close() error                                           { return nil }

var _ store.TermStore = (*fakeStore)(nil)

func TestTermProbability(t *testing.T) {
	s := New(DefaultConfig())

	t.Run("below min_word_count returns new_word_score", func(t *testing.T) {
		rec := store.TermRecord{GoodCount: 1, SpamCount: 1}
		got := s.TermProbability(rec, 1000, 1000)
		if got != s.cfg.NewWordScore {
			t.Errorf("got %v, want new_word_score %v", got, s.cfg.NewWordScore)
		}
	})

	t.Run("balanced presence yields ~0.5 regardless of corpus size", func(t *testing.T) {
		rec := store.TermRecord{GoodCount: 10, SpamCount: 10}
		got := s.TermProbability(rec, 10000, 100)
		if math.Abs(got-0.5) > 1e-9 {
			t.Errorf("got %v, want ~0.5", got)
		}
	})

	t.Run("clamps to 0.99 for spam-only terms", func(t *testing.T) {
		rec := store.TermRecord{GoodCount: 0, SpamCount: 100}
		got := s.TermProbability(rec, 1000, 1000)
		if got != 0.99 {
			t.Errorf("got %v, want 0.99", got)
		}
	})

	t.Run("clamps to 0.01 for good-only terms", func(t *testing.T) {
		rec := store.TermRecord{GoodCount: 100, SpamCount: 0}
		got := s.TermProbability(rec, 1000, 1000)
		if got != 0.01 {
			t.Errorf("got %v, want 0.01", got)
		}
	})
}

func wordTokens(words ...string) []tokenizer.Token {
	tokens := make([]tokenizer.Token, len(words))
	for i, w := range words {
		tokens[i] = tokenizer.Token{Text: w, Flags: tokenizer.FlagWord}
	}
	return tokens
}

func TestScoreNormal(t *testing.T) {
	fs := newFakeStore(1000, 1000)
	fs.set("viagra", 0, 500)
	fs.set("meeting", 500, 0)

	s := New(DefaultConfig())
	sc, err := s.Score(wordTokens("viagra", "viagra", "viagra"), fs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !sc.IsSpam {
		t.Errorf("expected spam classification, got probability %v", sc.Probability)
	}
	if sc.TermsUsed == 0 {
		t.Errorf("expected at least one term used")
	}
}

func TestScoreMaxWordRepeatsCaps(t *testing.T) {
	fs := newFakeStore(1000, 1000)
	fs.set("viagra", 0, 500)

	cfg := DefaultConfig()
	cfg.MaxWordRepeats = 2
	s := New(cfg)

	tokens := wordTokens("viagra", "viagra", "viagra", "viagra", "viagra")
	sc, err := s.Score(tokens, fs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// With a single highly discriminative term capped at 2 repeats, the
	// resulting probability should match scoring exactly two repeats.
	sc2, err := s.Score(wordTokens("viagra", "viagra"), fs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(sc.Probability-sc2.Probability) > 1e-12 {
		t.Errorf("repetition cap not applied: %v vs %v", sc.Probability, sc2.Probability)
	}
}

func TestScoreMinDistanceFiltersNeutralTerms(t *testing.T) {
	fs := newFakeStore(1000, 1000)
	fs.set("the", 500, 500) // exactly neutral

	s := New(DefaultConfig())
	sc, err := s.Score(wordTokens("the"), fs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sc.TermsUsed != 0 {
		t.Errorf("expected neutral term to be filtered, terms_used=%d", sc.TermsUsed)
	}
}

func TestScoreEmptyMessageUsesNewWordScore(t *testing.T) {
	fs := newFakeStore(1000, 1000)
	s := New(DefaultConfig())
	sc, err := s.Score(nil, fs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sc.Probability != s.cfg.NewWordScore {
		t.Errorf("got %v, want new_word_score %v", sc.Probability, s.cfg.NewWordScore)
	}
}

func TestSelectTopTermsTieBreakLexicographic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TermsForScore = 1
	cfg.ExtendTopTerms = true
	s := New(cfg)

	candidates := []candidate{
		{key: "zzz", prob: 0.9, distance: 0.4},
		{key: "aaa", prob: 0.9, distance: 0.4},
		{key: "mmm", prob: 0.1, distance: 0.1},
	}
	selected := s.selectTopTerms(candidates)
	if len(selected) != 2 {
		t.Fatalf("expected both tied top terms selected, got %d", len(selected))
	}
	if selected[0].key != "aaa" || selected[1].key != "zzz" {
		t.Errorf("expected lexicographic tie order [aaa zzz], got [%s %s]", selected[0].key, selected[1].key)
	}
}

func TestCombineModesAgreeOnDirection(t *testing.T) {
	selected := []candidate{
		{key: "a", prob: 0.9, distance: 0.4, repeats: 1},
		{key: "b", prob: 0.85, distance: 0.35, repeats: 1},
		{key: "c", prob: 0.8, distance: 0.3, repeats: 1},
	}

	normal := New(DefaultConfig())
	robinson := New(Config{ScoringMode: ModeRobinson})

	pNormal := normal.combine(selected)
	pRobinson := robinson.combine(selected)

	if pNormal <= 0.5 {
		t.Errorf("normal combine should lean spam, got %v", pNormal)
	}
	if pRobinson <= 0.5 {
		t.Errorf("robinson combine should lean spam, got %v", pRobinson)
	}
}

func TestChiSquareSurvivalBounds(t *testing.T) {
	if v := chiSquareSurvival(0, 4); v != 1 {
		t.Errorf("survival at x=0 should be 1, got %v", v)
	}
	if v := chiSquareSurvival(1000, 4); v < 0 || v > 1e-6 {
		t.Errorf("survival at large x should be ~0, got %v", v)
	}
}
