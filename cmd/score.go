package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/headers"
	"github.com/zpam/bayescore/pkg/message"
	"github.com/zpam/bayescore/pkg/scorer"
	"github.com/zpam/bayescore/pkg/tokenizer"
)

var (
	scoreJSON    bool
	scoreHeaders bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <message-file>",
	Short: "Score a single message against the term store",
	Long: `Tokenize and score one RFC-822 message file, reporting its spam
probability. With --headers, also runs the SPF/DKIM/DMARC advisory
validator and folds its anomaly findings into the scored token stream as
DERIVED header tokens.`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open message: %v", err)
	}
	defer f.Close()

	msg, err := message.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse message: %v", err)
	}

	ts, err := cfg.OpenStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %v", err)
	}
	defer ts.Close()

	tok := tokenizer.New(cfg.Tokenizer.ToTokenizerConfig())
	sc := scorer.New(cfg.Scorer.ToScorerConfig())

	tokens := tok.Tokenize(msg)

	var authResult *headers.ValidationResult
	if scoreHeaders {
		headersCfg := headers.DefaultConfig()
		headersCfg.EnableSPF = cfg.Headers.EnableSPF
		headersCfg.EnableDKIM = cfg.Headers.EnableDKIM
		headersCfg.EnableDMARC = cfg.Headers.EnableDMARC
		headersCfg.DNSTimeout = time.Duration(cfg.Headers.DNSTimeoutMs) * time.Millisecond
		headersCfg.MaxHopCount = cfg.Headers.MaxHopCount
		headersCfg.SuspiciousServerScore = cfg.Headers.SuspiciousServerScore
		headersCfg.CacheSize = cfg.Headers.CacheSize
		headersCfg.CacheTTL = time.Duration(cfg.Headers.CacheTTLMin) * time.Minute

		validator := headers.NewValidator(headersCfg)
		authResult = validator.ValidateHeaders(msg)
		tokens = append(tokens, tokenizer.AuthDerivedTokens(authResult)...)
	}

	score, err := sc.Score(tokens, ts)
	if err != nil {
		return fmt.Errorf("failed to score message: %v", err)
	}

	if scoreJSON {
		fmt.Printf("{\"probability\":%.6f,\"is_spam\":%v,\"confidence\":%.6f,\"terms_used\":%d}\n",
			score.Probability, score.IsSpam, score.Confidence, score.TermsUsed)
		return nil
	}

	verdict := "ham"
	if score.IsSpam {
		verdict = "SPAM"
	}
	fmt.Printf("%s  probability=%.4f confidence=%.4f terms=%d\n", verdict, score.Probability, score.Confidence, score.TermsUsed)
	if len(score.TopTerms) > 0 {
		fmt.Printf("top terms: %v\n", score.TopTerms)
	}
	if authResult != nil {
		fmt.Printf("header auth: score=%.1f suspicious=%.1f spf=%s dkim=%v dmarc=%v\n",
			authResult.AuthScore, authResult.SuspiciScore, authResult.SPF.Result, authResult.DKIM.Valid, authResult.DMARC.Valid)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Output the score as JSON")
	scoreCmd.Flags().BoolVar(&scoreHeaders, "headers", false, "Also run the header-authentication advisory signal and fold it into scoring")
}
