package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	generateCount  int
	generateOutput string
	generateSplit  float64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic labeled corpus for testing train/evaluate",
	Long: `generate writes a synthetic set of spam_NNNN.eml and ham_NNNN.eml
messages to --output, useful for exercising 'train' and 'evaluate' without
a real corpus on hand. The generated messages are intentionally
stereotyped; they are no substitute for training on real mail.`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generateCount <= 0 {
		return fmt.Errorf("count must be greater than 0")
	}
	if generateSplit < 0 || generateSplit > 1 {
		return fmt.Errorf("spam-ratio must be between 0 and 1")
	}

	generator := newMessageGenerator()

	if err := os.MkdirAll(generateOutput, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	spamCount := int(float64(generateCount) * generateSplit)
	hamCount := generateCount - spamCount

	start := time.Now()

	for i := 0; i < spamCount; i++ {
		msg := generator.spamMessage()
		filename := filepath.Join(generateOutput, fmt.Sprintf("spam_%04d.eml", i+1))
		if err := os.WriteFile(filename, []byte(msg), 0644); err != nil {
			return fmt.Errorf("failed to write spam message %d: %v", i+1, err)
		}
	}
	for i := 0; i < hamCount; i++ {
		msg := generator.hamMessage()
		filename := filepath.Join(generateOutput, fmt.Sprintf("ham_%04d.eml", i+1))
		if err := os.WriteFile(filename, []byte(msg), 0644); err != nil {
			return fmt.Errorf("failed to write ham message %d: %v", i+1, err)
		}
	}

	duration := time.Since(start)
	fmt.Printf("wrote %d spam, %d ham to %s in %v\n", spamCount, hamCount, generateOutput, duration)
	return nil
}

// messageGenerator builds stereotyped RFC-822 messages from a fixed pool
// of subjects, bodies, and sender/recipient domains.
type messageGenerator struct {
	rand *rand.Rand

	spamSubjects []string
	hamSubjects  []string
	spamBodies   []string
	hamBodies    []string
	spamDomains  []string
	hamDomains   []string
	spamKeywords []string
	names        []string
}

func newMessageGenerator() *messageGenerator {
	return &messageGenerator{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),

		spamSubjects: []string{
			"URGENT!!! FREE MONEY!!!",
			"You have won $1,000,000!!!",
			"ACT NOW - Limited time offer!",
			"Get rich quick - GUARANTEED!",
			"FREE prescription - No doctor visit needed",
			"Lose 50 pounds in 10 days!",
			"Work from home - Make $5000/week",
			"CONGRATULATIONS - You're our winner!",
			"Click here for FREE gift cards",
			"Urgent: Your account will be closed",
		},
		hamSubjects: []string{
			"Meeting tomorrow at 2 PM",
			"Quarterly report attached",
			"Project update - Phase 2 complete",
			"Happy birthday!",
			"Weekend plans?",
			"Conference call notes",
			"Invoice #12345",
			"Welcome to our team",
			"System maintenance notice",
			"Re: Budget approval",
		},
		spamBodies: []string{
			"Congratulations! You have been selected to receive FREE MONEY! No risk involved! GUARANTEED income! Act now before this offer expires! Click here: %s",
			"URGENT! Your account will be suspended unless you verify your information immediately! Click here to avoid suspension: %s",
			"Make money fast with our proven system! Thousands are already earning $10,000 per week! Join now: %s",
			"You have won our lottery! Claim your $1,000,000 prize now! Send your bank details to claim: %s",
		},
		hamBodies: []string{
			"Hi there,\n\nI hope this email finds you well. I wanted to remind you about our meeting tomorrow at 2 PM in the conference room.\n\nWe'll be discussing the quarterly reports and planning for next quarter.\n\nBest regards,\n%s",
			"Hello,\n\nPlease find attached the quarterly report for your review. The numbers look good overall.\n\nLet me know if you have any questions.\n\nThanks,\n%s",
			"Hi team,\n\nJust a quick update on the project progress. Phase 2 has been completed successfully and we're on track for the deadline.\n\nBest,\n%s",
		},
		spamDomains: []string{
			"get-rich-quick.com", "suspicious-domain.org", "free-money.net",
			"fake-bank.com", "lottery-scam.org", "identity-theft.biz",
		},
		hamDomains: []string{
			"gmail.com", "outlook.com", "company.com", "university.edu",
			"corporation.net", "startup.io",
		},
		spamKeywords: []string{
			"free money", "get rich", "make money fast", "guaranteed income",
			"act now", "limited time", "urgent", "you have won",
		},
		names: []string{
			"John Smith", "Jane Doe", "Mike Johnson", "Sarah Wilson",
			"David Brown", "Lisa Garcia", "Robert Miller",
		},
	}
}

func (g *messageGenerator) spamMessage() string {
	domain := g.choice(g.spamDomains)
	from := fmt.Sprintf("%s@%s", g.choice([]string{"noreply", "winner", "offer"}), domain)
	to := g.recipient()
	subject := g.spamCharacteristics(g.choice(g.spamSubjects))
	link := fmt.Sprintf("http://%s/click-here", domain)
	body := fmt.Sprintf(g.choice(g.spamBodies), link)
	if g.rand.Float64() < 0.5 {
		body += "\n\n" + strings.ToUpper(g.choice(g.spamKeywords)) + "!"
	}
	return g.format(from, to, subject, body)
}

func (g *messageGenerator) hamMessage() string {
	name := g.choice(g.names)
	nameParts := strings.Split(strings.ToLower(name), " ")
	domain := g.choice(g.hamDomains)
	from := fmt.Sprintf("%s.%s@%s", nameParts[0], nameParts[1], domain)
	to := g.recipient()
	subject := g.choice(g.hamSubjects)
	body := fmt.Sprintf(g.choice(g.hamBodies), name)
	return g.format(from, to, subject, body)
}

func (g *messageGenerator) recipient() string {
	domains := []string{"example.com", "test.org", "demo.net"}
	return fmt.Sprintf("%s@%s", g.choice([]string{"user", "customer", "member"}), g.choice(domains))
}

func (g *messageGenerator) spamCharacteristics(subject string) string {
	if g.rand.Float64() < 0.7 {
		subject = strings.ReplaceAll(subject, "!", "!!!")
	}
	if g.rand.Float64() < 0.5 {
		subject = strings.ToUpper(subject)
	}
	return subject
}

func (g *messageGenerator) format(from, to, subject, body string) string {
	timestamp := time.Now().Add(-time.Duration(g.rand.Intn(365*24)) * time.Hour)
	return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nDate: %s\nMessage-ID: <%d@generator.local>\n\n%s",
		from, to, subject, timestamp.Format("Mon, 02 Jan 2006 15:04:05 -0700"), g.rand.Int63(), body)
}

func (g *messageGenerator) choice(items []string) string {
	return items[g.rand.Intn(len(items))]
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 100, "Number of messages to generate")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "test-data", "Output directory")
	generateCmd.Flags().Float64VarP(&generateSplit, "spam-ratio", "r", 0.3, "Ratio of spam messages (0.0-1.0)")
}
