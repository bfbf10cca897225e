package trainer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

func newTestTrainer(t *testing.T) (*Trainer, store.TermStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "bayescore.db")
	ts, err := store.Open(dbPath, 100)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { ts.Close() })

	tok := tokenizer.New(tokenizer.DefaultConfig())
	sc := scorer.New(scorer.DefaultConfig())
	return New(tok, ts, sc), ts
}

func mustParse(t *testing.T, raw string) *message.Message {
	t.Helper()
	msg, err := message.Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("message.Parse: %v", err)
	}
	return msg
}

const spamRaw = `From: promo@example.com
Subject: buy viagra now
Content-Type: text/plain

act now limited time offer viagra viagra viagra
`

const hamRaw = `From: alice@example.com
Subject: lunch tomorrow
Content-Type: text/plain

are we still on for lunch tomorrow
`

func TestTrainRegistersNewMessage(t *testing.T) {
	tr, ts := newTestTrainer(t)
	msg := mustParse(t, spamRaw)

	trained, err := tr.Train(msg, store.Spam, false)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !trained {
		t.Fatalf("expected Train to report true for a new message")
	}

	label, known, err := ts.MessageKnown(msg.Digest())
	if err != nil {
		t.Fatalf("MessageKnown: %v", err)
	}
	if !known || label != store.Spam {
		t.Errorf("expected digest registered as spam, got known=%v label=%v", known, label)
	}

	good, spam, err := ts.Globals()
	if err != nil {
		t.Fatalf("Globals: %v", err)
	}
	if spam != 1 || good != 0 {
		t.Errorf("expected globals (good=0, spam=1), got (good=%d, spam=%d)", good, spam)
	}
}

func TestTrainSameLabelNoopWithoutForce(t *testing.T) {
	tr, _ := newTestTrainer(t)
	msg := mustParse(t, spamRaw)

	if _, err := tr.Train(msg, store.Spam, false); err != nil {
		t.Fatalf("first Train: %v", err)
	}
	trained, err := tr.Train(msg, store.Spam, false)
	if err != nil {
		t.Fatalf("second Train: %v", err)
	}
	if trained {
		t.Errorf("expected re-training the same label without force_update to be a no-op")
	}
}

func TestTrainReclassifiesOppositeLabel(t *testing.T) {
	tr, ts := newTestTrainer(t)
	msg := mustParse(t, spamRaw)

	if _, err := tr.Train(msg, store.Spam, false); err != nil {
		t.Fatalf("initial Train: %v", err)
	}

	trained, err := tr.Train(msg, store.Good, false)
	if err != nil {
		t.Fatalf("reclassify Train: %v", err)
	}
	if !trained {
		t.Errorf("expected reclassification to report true")
	}

	label, known, err := ts.MessageKnown(msg.Digest())
	if err != nil {
		t.Fatalf("MessageKnown: %v", err)
	}
	if !known || label != store.Good {
		t.Errorf("expected digest now registered as good, got known=%v label=%v", known, label)
	}

	good, spam, err := ts.Globals()
	if err != nil {
		t.Fatalf("Globals: %v", err)
	}
	if good != 1 || spam != 0 {
		t.Errorf("expected globals (good=1, spam=0) after reclassification, got (good=%d, spam=%d)", good, spam)
	}

	rec, ok, err := ts.Get("viagra")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok && rec.SpamCount != 0 {
		t.Errorf("expected viagra's spam contribution reversed, got spam=%d", rec.SpamCount)
	}
}

func TestRemoveReversesContribution(t *testing.T) {
	tr, ts := newTestTrainer(t)
	msg := mustParse(t, hamRaw)

	if _, err := tr.Train(msg, store.Good, false); err != nil {
		t.Fatalf("Train: %v", err)
	}

	removed, err := tr.Remove(msg)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Errorf("expected Remove to report true for a registered message")
	}

	_, known, err := ts.MessageKnown(msg.Digest())
	if err != nil {
		t.Fatalf("MessageKnown: %v", err)
	}
	if known {
		t.Errorf("expected digest to be unregistered after Remove")
	}

	good, spam, err := ts.Globals()
	if err != nil {
		t.Fatalf("Globals: %v", err)
	}
	if good != 0 || spam != 0 {
		t.Errorf("expected globals back to zero, got (good=%d, spam=%d)", good, spam)
	}
}

func TestRemoveUnknownMessageReturnsFalse(t *testing.T) {
	tr, _ := newTestTrainer(t)
	msg := mustParse(t, hamRaw)

	removed, err := tr.Remove(msg)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Errorf("expected Remove to report false for an unregistered message")
	}
}

func TestTrainSelectiveSkipsConfidentCorrectMessages(t *testing.T) {
	tr, _ := newTestTrainer(t)

	// Train heavily so the scorer becomes confidently correct about spam
	// terms, then verify a second, near-identical spam message is skipped
	// by TrainSelective.
	seed := mustParse(t, spamRaw)
	for i := 0; i < 20; i++ {
		raw := strings.Replace(spamRaw, "buy viagra now", "buy viagra now "+strings.Repeat("x", i), 1)
		msg := mustParse(t, raw)
		if _, err := tr.Train(msg, store.Spam, false); err != nil {
			t.Fatalf("seed Train: %v", err)
		}
	}

	trained, err := tr.TrainSelective(seed, store.Spam)
	if err != nil {
		t.Fatalf("TrainSelective: %v", err)
	}
	if trained {
		t.Errorf("expected TrainSelective to skip an already-confident-correct message")
	}
}
