package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/mailbox"
	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
	"github.com/zpam/bayescore/pkg/trainer"
)

var (
	trainSpamDir    string
	trainHamDir     string
	trainSpamMbox   string
	trainHamMbox    string
	trainMaildir    string
	trainMaildirTag string // "spam" or "good", label for trainMaildir
	trainSelective  bool
	trainForce      bool
	trainQuiet      bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the term store from spam/ham corpora",
	Long: `Train applies classified messages to the term store.

Input sources (combine as many as needed):
  --spam-dir / --ham-dir    plain directories of one message per file
  --spam-mbox / --ham-mbox  mbox archives
  --maildir DIR --label spam|good   a single Maildir, all messages one label

Use --selective to train only messages the current model already gets
wrong or is unsure about (mistake-driven training), rather than every
message unconditionally.`,
	RunE: runTrain,
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	tok := tokenizer.New(cfg.Tokenizer.ToTokenizerConfig())
	sc := scorer.New(cfg.Scorer.ToScorerConfig())
	tr := trainer.New(tok, ts, sc)

	var trained, skipped int
	apply := func(msg *message.Message, label store.Label) error {
		var (
			did bool
			err error
		)
		if trainSelective {
			did, err = tr.TrainSelective(msg, label)
		} else {
			did, err = tr.Train(msg, label, trainForce)
		}
		if err != nil {
			return err
		}
		if did {
			trained++
		} else {
			skipped++
		}
		return nil
	}

	if trainSpamDir != "" {
		if err := mailbox.WalkDirectory(trainSpamDir, func(path string, msg *message.Message) error {
			return apply(msg, store.Spam)
		}); err != nil {
			return fmt.Errorf("spam-dir %s: %v", trainSpamDir, err)
		}
	}
	if trainHamDir != "" {
		if err := mailbox.WalkDirectory(trainHamDir, func(path string, msg *message.Message) error {
			return apply(msg, store.Good)
		}); err != nil {
			return fmt.Errorf("ham-dir %s: %v", trainHamDir, err)
		}
	}
	if trainSpamMbox != "" {
		if err := mailbox.WalkMbox(trainSpamMbox, func(index int, msg *message.Message) error {
			return apply(msg, store.Spam)
		}); err != nil {
			return fmt.Errorf("spam-mbox %s: %v", trainSpamMbox, err)
		}
	}
	if trainHamMbox != "" {
		if err := mailbox.WalkMbox(trainHamMbox, func(index int, msg *message.Message) error {
			return apply(msg, store.Good)
		}); err != nil {
			return fmt.Errorf("ham-mbox %s: %v", trainHamMbox, err)
		}
	}
	if trainMaildir != "" {
		label := store.Good
		switch trainMaildirTag {
		case "spam":
			label = store.Spam
		case "good", "":
		default:
			return fmt.Errorf("--label must be spam or good, got %q", trainMaildirTag)
		}
		if err := mailbox.WalkMaildir(trainMaildir, func(path string, msg *message.Message) error {
			return apply(msg, label)
		}); err != nil {
			return fmt.Errorf("maildir %s: %v", trainMaildir, err)
		}
	}

	if !trainQuiet {
		fmt.Printf("trained %d messages, skipped %d (already trained or already classified correctly)\n", trained, skipped)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainSpamDir, "spam-dir", "", "Directory of spam messages, one per file")
	trainCmd.Flags().StringVar(&trainHamDir, "ham-dir", "", "Directory of ham messages, one per file")
	trainCmd.Flags().StringVar(&trainSpamMbox, "spam-mbox", "", "mbox archive of spam messages")
	trainCmd.Flags().StringVar(&trainHamMbox, "ham-mbox", "", "mbox archive of ham messages")
	trainCmd.Flags().StringVar(&trainMaildir, "maildir", "", "A single Maildir to train, labeled via --label")
	trainCmd.Flags().StringVar(&trainMaildirTag, "label", "good", "Label for --maildir: spam or good")
	trainCmd.Flags().BoolVar(&trainSelective, "selective", false, "Train only messages the current model misclassifies or is unsure about")
	trainCmd.Flags().BoolVar(&trainForce, "force", false, "Re-apply training deltas even if the message is already registered under the same label")
	trainCmd.Flags().BoolVarP(&trainQuiet, "quiet", "q", false, "Suppress the summary line")
}
