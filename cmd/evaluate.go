package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/mailbox"
	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/profiler"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/store"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

var (
	evalSpamDir     string
	evalHamDir      string
	evalConcurrency int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure scoring accuracy and latency against a labeled held-out set",
	Long: `evaluate scores every message under --spam-dir and --ham-dir against
the existing term store (it never trains), and reports accuracy,
precision, recall and per-message latency percentiles.

Run this against data the store was NOT trained on; scoring its own
training set trivially overstates accuracy.`,
	RunE: runEvaluate,
}

type evalCase struct {
	msg    *message.Message
	isSpam bool
	err    error
	result scorer.Score
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if evalSpamDir == "" && evalHamDir == "" {
		return fmt.Errorf("at least one of --spam-dir/--ham-dir is required")
	}

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

	var cases []*evalCase
	collect := func(dir string, isSpam bool) error {
		if dir == "" {
			return nil
		}
		return mailbox.WalkDirectory(dir, func(path string, msg *message.Message) error {
			cases = append(cases, &evalCase{msg: msg, isSpam: isSpam})
			return nil
		})
	}
	if err := collect(evalSpamDir, true); err != nil {
		return fmt.Errorf("spam-dir %s: %v", evalSpamDir, err)
	}
	if err := collect(evalHamDir, false); err != nil {
		return fmt.Errorf("ham-dir %s: %v", evalHamDir, err)
	}
	if len(cases) == 0 {
		return fmt.Errorf("no messages found")
	}

	concurrency := evalConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	prof := profiler.NewProfiler()

	// store.TermStore implementations are safe for concurrent reads; Score
	// only calls Get, never a mutating method, so sharing ts across workers
	// is safe without extra locking here.
	_ = store.TermStore(ts)

	start := time.Now()
	for _, c := range cases {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(c *evalCase) {
			defer wg.Done()
			defer func() { <-semaphore }()

			timer := prof.Start("score")
			tokens := tok.Tokenize(c.msg)
			result, err := sc.Score(tokens, ts)
			timer.Stop()
			c.err = err
			c.result = result
		}(c)
	}
	wg.Wait()
	totalTime := time.Since(start)

	var truePos, trueNeg, falsePos, falseNeg, errs int
	for _, c := range cases {
		if c.err != nil {
			errs++
			continue
		}
		switch {
		case c.isSpam && c.result.IsSpam:
			truePos++
		case !c.isSpam && !c.result.IsSpam:
			trueNeg++
		case !c.isSpam && c.result.IsSpam:
			falsePos++
		case c.isSpam && !c.result.IsSpam:
			falseNeg++
		}
	}

	timing := prof.GetStats("score")
	total := truePos + trueNeg + falsePos + falseNeg
	accuracy := 0.0
	precision := 0.0
	recall := 0.0
	if total > 0 {
		accuracy = float64(truePos+trueNeg) / float64(total)
	}
	if truePos+falsePos > 0 {
		precision = float64(truePos) / float64(truePos+falsePos)
	}
	if truePos+falseNeg > 0 {
		recall = float64(truePos) / float64(truePos+falseNeg)
	}

	fmt.Printf("messages: %d (errors: %d)\n", len(cases), errs)
	fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f\n", accuracy, precision, recall)
	fmt.Printf("confusion: tp=%d tn=%d fp=%d fn=%d\n", truePos, trueNeg, falsePos, falseNeg)
	fmt.Printf("latency: median=%v p95=%v p99=%v total=%v\n",
		timing.Median, timing.P95, timing.P99, totalTime)
	return nil
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalSpamDir, "spam-dir", "", "Directory of known-spam messages")
	evaluateCmd.Flags().StringVar(&evalHamDir, "ham-dir", "", "Directory of known-ham messages")
	evaluateCmd.Flags().IntVar(&evalConcurrency, "concurrency", 8, "Concurrent scoring workers")
}
