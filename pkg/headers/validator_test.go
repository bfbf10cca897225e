package headers

import (
	"strings"
	"testing"
	"time"

	"github.com/zpam/bayescore/pkg/message"
)

// newTestMessage builds a *message.Message from an ordered header list,
// collapsing duplicates into Headers the way message.Parse does.
func newTestMessage(fields ...message.HeaderField) *message.Message {
	msg := &message.Message{
		Headers:     make(map[string]string, len(fields)),
		HeaderOrder: fields,
	}
	for _, f := range fields {
		msg.Headers[f.Name] = f.Value
	}
	return msg
}

func TestNewValidator(t *testing.T) {
	validator := NewValidator(nil)
	if validator == nil {
		t.Fatal("NewValidator returned nil")
	}

	config := &Config{
		EnableSPF:             true,
		EnableDKIM:            false,
		EnableDMARC:           true,
		DNSTimeout:            2 * time.Second,
		MaxHopCount:           10,
		SuspiciousServerScore: 80,
		CacheSize:             500,
		CacheTTL:              30 * time.Minute,
	}

	validator = NewValidator(config)
	if validator == nil {
		t.Fatal("NewValidator returned nil with custom config")
	}

	if validator.config.DNSTimeout != 2*time.Second {
		t.Errorf("Expected DNS timeout 2s, got %v", validator.config.DNSTimeout)
	}
}

func TestValidateHeaders(t *testing.T) {
	validator := NewValidator(nil)

	msg := newTestMessage(
		message.HeaderField{Name: "From", Value: "test@example.com"},
		message.HeaderField{Name: "To", Value: "recipient@domain.com"},
		message.HeaderField{Name: "Subject", Value: "Test Email"},
		message.HeaderField{Name: "Date", Value: "Mon, 01 Jan 2024 12:00:00 +0000"},
		message.HeaderField{Name: "Message-Id", Value: "<test123@example.com>"},
		message.HeaderField{Name: "Return-Path", Value: "test@example.com"},
		message.HeaderField{Name: "Received", Value: "from mail.example.com (mail.example.com [192.168.1.1]) by mx.domain.com; Mon, 01 Jan 2024 11:59:00 +0000"},
	)
	msg.Headers["Message-ID"] = msg.Headers["Message-Id"]

	result := validator.ValidateHeaders(msg)

	if result == nil {
		t.Fatal("ValidateHeaders returned nil")
	}

	if result.ValidatedAt.IsZero() {
		t.Error("ValidatedAt should be set")
	}

	if result.Duration == 0 {
		t.Error("Duration should be greater than 0")
	}

	if result.SPF.Result == "" {
		t.Error("SPF result should not be empty")
	}

	if result.DomainAlignment.FromDomain != "example.com" {
		t.Errorf("Expected From domain example.com, got %q", result.DomainAlignment.FromDomain)
	}

	if !result.DomainAlignment.Aligned {
		t.Error("From and Return-Path share a domain, should align strictly")
	}

	if result.Routing.HopCount != 1 {
		t.Errorf("Expected hop count 1, got %d", result.Routing.HopCount)
	}

	if result.AuthScore < 0 || result.AuthScore > 100 {
		t.Errorf("AuthScore should be 0-100, got %f", result.AuthScore)
	}

	if result.SuspiciScore < 0 || result.SuspiciScore > 100 {
		t.Errorf("SuspiciScore should be 0-100, got %f", result.SuspiciScore)
	}
}

func TestValidateHeadersMultiHop(t *testing.T) {
	validator := NewValidator(nil)

	// Duplicate Received headers only survive via HeaderOrder, not Headers.
	msg := newTestMessage(
		message.HeaderField{Name: "From", Value: "test@example.com"},
		message.HeaderField{Name: "Return-Path", Value: "bounce@mail.example.com"},
		message.HeaderField{Name: "Received", Value: "from mx2.example.com (mx2.example.com [10.0.0.2]) by mx1.example.com with ESMTP id abc123; Mon, 01 Jan 2024 12:00:00 +0000"},
		message.HeaderField{Name: "Received", Value: "from sender.example.com (sender.example.com [10.0.0.1]) by mx2.example.com with ESMTP id def456; Mon, 01 Jan 2024 11:59:00 +0000"},
	)

	result := validator.ValidateHeaders(msg)

	if result.Routing.HopCount != 2 {
		t.Fatalf("Expected 2 received hops from HeaderOrder, got %d", result.Routing.HopCount)
	}

	if len(result.Routing.Hops) != 2 {
		t.Fatalf("Expected 2 parsed hops, got %d", len(result.Routing.Hops))
	}

	if result.Routing.Hops[0].With != "ESMTP" {
		t.Errorf("Expected first hop protocol ESMTP, got %q", result.Routing.Hops[0].With)
	}
	if result.Routing.Hops[0].ID != "abc123" {
		t.Errorf("Expected first hop id abc123, got %q", result.Routing.Hops[0].ID)
	}

	if !result.DomainAlignment.Aligned && !result.DomainAlignment.RelaxedAligned {
		t.Error("mail.example.com and example.com share an organizational domain, should relaxed-align")
	}
}

func TestExtractDomain(t *testing.T) {
	validator := NewValidator(nil)

	testCases := []struct {
		email    string
		expected string
	}{
		{"test@example.com", "example.com"},
		{"user@DOMAIN.COM", "domain.com"},
		{"Name <user@example.org>", "example.org"},
		{"<test@domain.net>", "domain.net"},
		{"invalid-email", ""},
		{"", ""},
		{"test@", ""},
		{"@domain.com", ""},
	}

	for _, tc := range testCases {
		result := validator.extractDomain(tc.email)
		if result != tc.expected {
			t.Errorf("extractDomain(%q) = %q, expected %q", tc.email, result, tc.expected)
		}
	}
}

func TestOrganizationalDomain(t *testing.T) {
	testCases := []struct {
		domain   string
		expected string
	}{
		{"mail.example.com", "example.com"},
		{"a.b.example.co.uk", "example.co.uk"},
		{"example.com", "example.com"},
		{"com", "com"},
	}

	for _, tc := range testCases {
		result := organizationalDomain(tc.domain)
		if result != tc.expected {
			t.Errorf("organizationalDomain(%q) = %q, expected %q", tc.domain, result, tc.expected)
		}
	}
}

func TestDomainAlignment(t *testing.T) {
	validator := NewValidator(nil)

	strict := validator.analyzeDomainAlignment("example.com", "example.com")
	if !strict.Aligned || !strict.RelaxedAligned {
		t.Error("identical domains should align at both strict and relaxed levels")
	}

	relaxed := validator.analyzeDomainAlignment("example.com", "bounce.example.com")
	if relaxed.Aligned {
		t.Error("subdomain mismatch should not be strictly aligned")
	}
	if !relaxed.RelaxedAligned {
		t.Error("subdomain mismatch should still be relaxed-aligned under the same organizational domain")
	}
	if len(relaxed.Issues) == 0 {
		t.Error("relaxed-only alignment should record an issue")
	}

	unaligned := validator.analyzeDomainAlignment("example.com", "attacker.net")
	if unaligned.Aligned || unaligned.RelaxedAligned {
		t.Error("unrelated domains should fail both alignment levels")
	}
}

func TestSPFValidation(t *testing.T) {
	validator := NewValidator(nil)

	result := validator.validateSPF("example.com", "192.168.1.1")

	if result.Result == "" {
		t.Error("SPF result should not be empty")
	}

	validResults := []string{"pass", "fail", "softfail", "neutral", "none", "temperror", "permerror"}
	found := false
	for _, valid := range validResults {
		if result.Result == valid {
			found = true
			break
		}
	}

	if !found {
		t.Errorf("SPF result %q is not a valid SPF result", result.Result)
	}
}

func TestDKIMValidation(t *testing.T) {
	validator := NewValidator(nil)

	headers := map[string]string{
		"From": "test@example.com",
	}

	result := validator.validateDKIM(headers)
	if result.Valid {
		t.Error("DKIM should not be valid without signature")
	}
	if result.Explanation == "" {
		t.Error("DKIM explanation should not be empty")
	}

	headers["DKIM-Signature"] = "v=1; a=rsa-sha256; d=example.com; s=default; h=from:to:subject; bh=hash; b=signature"

	result = validator.validateDKIM(headers)
	if !result.Valid {
		t.Error("DKIM should be valid with proper signature format")
	}
	if len(result.Domains) == 0 {
		t.Error("DKIM domains should be extracted")
	}
}

func TestDMARCValidation(t *testing.T) {
	validator := NewValidator(nil)

	spfResult := SPFResult{Valid: true, Result: "pass"}
	dkimResult := DKIMResult{Valid: true}

	result := validator.validateDMARC("example.com", spfResult, dkimResult)

	if result.Explanation == "" {
		t.Error("DMARC explanation should not be empty")
	}
}

func TestRoutingAnalysis(t *testing.T) {
	validator := NewValidator(nil)

	received := []string{
		"from suspicious.server.com (suspicious.server.com [192.168.1.1]) by mx.example.com with ESMTP; Mon, 01 Jan 2024 12:02:00 +0000",
		"from dynamic.pool.isp.com (dynamic.pool.isp.com [10.0.0.1]) by suspicious.server.com with ESMTP; Mon, 01 Jan 2024 12:01:00 +0000",
		"from mail.example.com (mail.example.com [203.0.113.1]) by dynamic.pool.isp.com with ESMTP; Mon, 01 Jan 2024 12:00:00 +0000",
	}

	result := validator.analyzeRouting(received)

	if result.HopCount != 3 {
		t.Errorf("Expected hop count 3, got %d", result.HopCount)
	}

	if len(result.SuspiciousHops) == 0 {
		t.Error("Should detect suspicious hops")
	}

	if len(result.OpenRelays) == 0 {
		t.Error("Should detect open relay patterns")
	}

	if len(result.Hops) != 3 {
		t.Fatalf("Expected 3 parsed hops, got %d", len(result.Hops))
	}

	for i, hop := range result.Hops {
		if hop.IP == "" {
			t.Errorf("Hop %d: expected a parsed IP", i)
		}
		if hop.Timestamp == nil {
			t.Errorf("Hop %d: expected a parsed timestamp", i)
		}
	}
}

func TestRoutingAnalysisTimingAnomaly(t *testing.T) {
	validator := NewValidator(nil)

	// Hop 0 (most recent relay) carries an earlier timestamp than hop 1,
	// which received the message first -- a chronological inconsistency.
	received := []string{
		"from b.example.com (b.example.com [10.0.0.2]) by c.example.com; Mon, 01 Jan 2024 11:00:00 +0000",
		"from a.example.com (a.example.com [10.0.0.1]) by b.example.com; Mon, 01 Jan 2024 12:00:00 +0000",
	}

	result := validator.analyzeRouting(received)

	if len(result.TimingAnomalies) == 0 {
		t.Error("Should detect a chronological inconsistency between hops")
	}
}

func TestAnomalyDetection(t *testing.T) {
	validator := NewValidator(nil)

	headers := map[string]string{
		"From":        "test@example.com",
		"Return-Path": "different@another.com",
		"Date":        "invalid-date-format",
		"Message-ID":  "invalid-message-id",
		// Missing Subject header
	}

	fromDomain := "example.com"
	returnPathDomain := "another.com"

	anomalies := validator.detectAnomalies(headers, fromDomain, returnPathDomain)

	if len(anomalies) == 0 {
		t.Error("Should detect anomalies")
	}

	found := false
	for _, anomaly := range anomalies {
		if strings.Contains(anomaly, "Domain mismatch") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Should detect domain mismatch")
	}
}

func TestAnomalyDetectionRelaxedAlignmentSuppressesMismatch(t *testing.T) {
	validator := NewValidator(nil)

	headers := map[string]string{
		"From":        "test@example.com",
		"Return-Path": "bounce@mail.example.com",
		"Date":        "Mon, 01 Jan 2024 12:00:00 +0000",
		"Message-ID":  "<test@example.com>",
	}

	anomalies := validator.detectAnomalies(headers, "example.com", "mail.example.com")

	for _, anomaly := range anomalies {
		if strings.Contains(anomaly, "Domain mismatch") {
			t.Error("Organizationally-aligned domains should not be flagged as a domain mismatch")
		}
	}
}

func TestScoreCalculation(t *testing.T) {
	validator := NewValidator(nil)

	goodResult := &ValidationResult{
		SPF:             SPFResult{Valid: true, Result: "pass"},
		DKIM:            DKIMResult{Valid: true},
		DMARC:           DMARCResult{Valid: true},
		DomainAlignment: DomainAlignment{Aligned: true, RelaxedAligned: true},
		Routing: RoutingResult{
			HopCount:         3,
			SuspiciousHops:   []string{},
			OpenRelays:       []string{},
			ReverseDNSIssues: []string{},
			TimingAnomalies:  []string{},
		},
		Anomalies: []string{},
	}

	authScore := validator.calculateAuthScore(goodResult)
	suspiciousScore := validator.calculateSuspiciousScore(goodResult)

	if authScore < 80 {
		t.Errorf("Good authentication should have high auth score, got %f", authScore)
	}

	if suspiciousScore > 20 {
		t.Errorf("Good authentication should have low suspicious score, got %f", suspiciousScore)
	}

	badResult := &ValidationResult{
		SPF:             SPFResult{Valid: false, Result: "fail"},
		DKIM:            DKIMResult{Valid: false},
		DMARC:           DMARCResult{Valid: false},
		DomainAlignment: DomainAlignment{Aligned: false, RelaxedAligned: false},
		Routing: RoutingResult{
			HopCount:         15,
			SuspiciousHops:   []string{"suspicious server"},
			OpenRelays:       []string{"open relay"},
			ReverseDNSIssues: []string{"no reverse DNS"},
			TimingAnomalies:  []string{"hop out of order"},
		},
		Anomalies: []string{"missing header", "invalid format"},
	}

	authScore = validator.calculateAuthScore(badResult)
	suspiciousScore = validator.calculateSuspiciousScore(badResult)

	if authScore > 50 {
		t.Errorf("Bad authentication should have low auth score, got %f", authScore)
	}

	if suspiciousScore < 50 {
		t.Errorf("Bad authentication should have high suspicious score, got %f", suspiciousScore)
	}
}

func TestHelperFunctions(t *testing.T) {
	validator := NewValidator(nil)

	testCases := []struct {
		ip       string
		cidr     string
		expected bool
	}{
		{"192.168.1.1", "192.168.1.0/24", true},
		{"192.168.1.1", "192.168.1.1", true},
		{"192.168.1.1", "10.0.0.0/8", false},
		{"invalid-ip", "192.168.1.0/24", false},
		{"192.168.1.1", "invalid-cidr", false},
	}

	for _, tc := range testCases {
		result := validator.ipInCIDR(tc.ip, tc.cidr)
		if result != tc.expected {
			t.Errorf("ipInCIDR(%q, %q) = %v, expected %v", tc.ip, tc.cidr, result, tc.expected)
		}
	}

	validMessageIDs := []string{
		"<test@example.com>",
		"<12345.abcde@domain.org>",
	}

	for _, msgID := range validMessageIDs {
		if !validator.isValidMessageID(msgID) {
			t.Errorf("isValidMessageID(%q) should return true", msgID)
		}
	}

	invalidMessageIDs := []string{
		"test@example.com",
		"<invalid>",
		"<test@>",
		"",
	}

	for _, msgID := range invalidMessageIDs {
		if validator.isValidMessageID(msgID) {
			t.Errorf("isValidMessageID(%q) should return false", msgID)
		}
	}
}

func TestExtractDKIMParam(t *testing.T) {
	validator := NewValidator(nil)

	dkimHeader := "v=1; a=rsa-sha256; d=example.com; s=default; h=from:to:subject; bh=hash; b=signature"

	testCases := []struct {
		param    string
		expected string
	}{
		{"v", "1"},
		{"a", "rsa-sha256"},
		{"d", "example.com"},
		{"s", "default"},
		{"nonexistent", ""},
	}

	for _, tc := range testCases {
		result := validator.extractDKIMParam(dkimHeader, tc.param)
		if result != tc.expected {
			t.Errorf("extractDKIMParam(%q) = %q, expected %q", tc.param, result, tc.expected)
		}
	}
}

func TestPerformance(t *testing.T) {
	config := &Config{
		EnableSPF:             false, // Disable to avoid DNS lookups
		EnableDKIM:            true,
		EnableDMARC:           false, // Disable to avoid DNS lookups
		DNSTimeout:            100 * time.Millisecond,
		MaxHopCount:           15,
		SuspiciousServerScore: 75,
		CacheSize:             1000,
		CacheTTL:              1 * time.Hour,
	}
	validator := NewValidator(config)

	msg := newTestMessage(
		message.HeaderField{Name: "From", Value: "test@example.com"},
		message.HeaderField{Name: "To", Value: "recipient@domain.com"},
		message.HeaderField{Name: "Subject", Value: "Test Email"},
		message.HeaderField{Name: "Date", Value: "Mon, 01 Jan 2024 12:00:00 +0000"},
		message.HeaderField{Name: "Message-ID", Value: "<test123@example.com>"},
		message.HeaderField{Name: "Return-Path", Value: "test@example.com"},
		message.HeaderField{Name: "Received", Value: "from mail.example.com (mail.example.com [192.168.1.1]) by mx.domain.com"},
	)

	start := time.Now()
	result := validator.ValidateHeaders(msg)
	elapsed := time.Since(start)

	if result == nil {
		t.Fatal("ValidateHeaders returned nil")
	}

	if elapsed > 50*time.Millisecond {
		t.Errorf("Headers validation took too long: %v", elapsed)
	}

	t.Logf("Headers validation took: %v", elapsed)
}
