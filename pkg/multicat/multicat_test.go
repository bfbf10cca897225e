package multicat

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
	"github.com/zpam/bayescore/pkg/trainer"
)

func newCategory(t *testing.T, name string) Category {
	t.Helper()
	ts, err := store.Open(filepath.Join(t.TempDir(), name+".db"), 100)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { ts.Close() })

	tok := tokenizer.New(tokenizer.DefaultConfig())
	sc := scorer.New(scorer.DefaultConfig())
	return Category{Name: name, Store: ts, Scorer: sc, Trainer: trainer.New(tok, ts, sc)}
}

func mustParse(t *testing.T, raw string) *message.Message {
	t.Helper()
	msg, err := message.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("message.Parse: %v", err)
	}
	return msg
}

const financeRaw = `From: bank@example.com
Subject: statement

your account balance invoice payment wire transfer
`

const socialRaw = `From: friend@example.com
Subject: party

birthday party invite friends weekend plans
`

func TestClassifyReturnsArgmaxCategory(t *testing.T) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	finance := newCategory(t, "finance")
	social := newCategory(t, "social")

	cls, err := NewClassifier(tok, []Category{finance, social})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	for i := 0; i < 10; i++ {
		// Vary the subject each round so every message has its own digest:
		// retraining an identical message is a no-op.
		suffix := strings.Repeat("x", i)
		finRaw := strings.Replace(financeRaw, "Subject: statement", "Subject: statement "+suffix, 1)
		socRaw := strings.Replace(socialRaw, "Subject: party", "Subject: party "+suffix, 1)
		if err := cls.Train(mustParse(t, finRaw), "finance", true); err != nil {
			t.Fatalf("Train finance: %v", err)
		}
		if err := cls.Train(mustParse(t, socRaw), "social", true); err != nil {
			t.Fatalf("Train social: %v", err)
		}
	}

	res, err := cls.Classify(mustParse(t, financeRaw))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "finance" {
		t.Errorf("expected finance to win, got %q (scores=%v)", res.Category, res.Scores)
	}

	res2, err := cls.Classify(mustParse(t, socialRaw))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res2.Category != "social" {
		t.Errorf("expected social to win, got %q (scores=%v)", res2.Category, res2.Scores)
	}
}

func TestNewClassifierRejectsFewerThanTwoCategories(t *testing.T) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	finance := newCategory(t, "finance")

	if _, err := NewClassifier(tok, []Category{finance}); err == nil {
		t.Errorf("expected an error for a single category")
	}
}

func TestNewClassifierRejectsDuplicateNames(t *testing.T) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	a := newCategory(t, "dup")
	b := newCategory(t, "dup")

	if _, err := NewClassifier(tok, []Category{a, b}); err == nil {
		t.Errorf("expected an error for duplicate category names")
	}
}

func TestTrainUnknownCategoryErrors(t *testing.T) {
	tok := tokenizer.New(tokenizer.DefaultConfig())
	finance := newCategory(t, "finance")
	social := newCategory(t, "social")
	cls, err := NewClassifier(tok, []Category{finance, social})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	if err := cls.Train(mustParse(t, financeRaw), "nonexistent", false); err == nil {
		t.Errorf("expected an error for an unknown category")
	}
}
