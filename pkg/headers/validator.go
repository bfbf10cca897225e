package headers

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/zpam/bayescore/pkg/message"
)

// ValidationResult is the advisory header-authentication report for one
// message: SPF/DKIM/DMARC outcomes, From/Return-Path domain alignment,
// a structurally parsed Received chain, and header anomalies, rolled up
// into an auth score and a suspicious score.
type ValidationResult struct {
	SPF   SPFResult   `json:"spf"`
	DKIM  DKIMResult  `json:"dkim"`
	DMARC DMARCResult `json:"dmarc"`

	DomainAlignment DomainAlignment `json:"domain_alignment"`
	Routing         RoutingResult   `json:"routing"`
	Anomalies       []string        `json:"anomalies"`

	AuthScore    float64 `json:"auth_score"`    // 0-100 (higher = better auth)
	SuspiciScore float64 `json:"suspici_score"` // 0-100 (higher = more suspicious)

	ValidatedAt time.Time     `json:"validated_at"`
	Duration    time.Duration `json:"duration"`
}

// SPFResult contains SPF validation results.
type SPFResult struct {
	Valid       bool     `json:"valid"`
	Record      string   `json:"record"`
	Result      string   `json:"result"` // pass, fail, softfail, neutral, none, temperror, permerror
	Explanation string   `json:"explanation"`
	IPMatches   []string `json:"ip_matches"`
}

// DKIMResult contains DKIM validation results.
type DKIMResult struct {
	Valid       bool     `json:"valid"`
	Signatures  []string `json:"signatures"`
	Domains     []string `json:"domains"`
	Selectors   []string `json:"selectors"`
	Algorithms  []string `json:"algorithms"`
	Explanation string   `json:"explanation"`
}

// DMARCResult contains DMARC validation results.
type DMARCResult struct {
	Valid       bool   `json:"valid"`
	Policy      string `json:"policy"` // none, quarantine, reject
	Alignment   string `json:"alignment"`
	Percentage  int    `json:"percentage"`
	Explanation string `json:"explanation"`
}

// DomainAlignment reports whether the From and Return-Path domains agree,
// at both strict (exact match) and relaxed (organizational-domain match)
// levels, the way DMARC itself defines alignment.
type DomainAlignment struct {
	FromDomain          string   `json:"from_domain,omitempty"`
	FromOrgDomain       string   `json:"from_org_domain,omitempty"`
	ReturnPathDomain    string   `json:"return_path_domain,omitempty"`
	ReturnPathOrgDomain string   `json:"return_path_org_domain,omitempty"`
	Aligned             bool     `json:"aligned"`
	RelaxedAligned      bool     `json:"relaxed_aligned"`
	Issues              []string `json:"issues,omitempty"`
}

// ReceivedHop is one structurally parsed Received: header — the hostnames,
// protocol, message id, client IP and timestamp a relay recorded when it
// accepted the message.
type ReceivedHop struct {
	From      string     `json:"from,omitempty"`
	By        string     `json:"by,omitempty"`
	With      string     `json:"with,omitempty"`
	ID        string     `json:"id,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Reverse   string     `json:"reverse,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RoutingResult contains email routing analysis.
type RoutingResult struct {
	HopCount         int           `json:"hop_count"`
	Hops             []ReceivedHop `json:"hops,omitempty"`
	SuspiciousHops   []string      `json:"suspicious_hops"`
	OpenRelays       []string      `json:"open_relays"`
	GeoAnomalies     []string      `json:"geo_anomalies"`
	TimingAnomalies  []string      `json:"timing_anomalies"`
	ReverseDNSIssues []string      `json:"reverse_dns_issues"`
}

// Validator handles email header validation.
type Validator struct {
	config *Config

	resolver *net.Resolver

	spfCache   map[string]*SPFResult
	dmarcCache map[string]*DMARCResult
}

// Config contains validation configuration.
type Config struct {
	EnableSPF   bool `json:"enable_spf"`
	EnableDKIM  bool `json:"enable_dkim"`
	EnableDMARC bool `json:"enable_dmarc"`

	DNSTimeout time.Duration `json:"dns_timeout"`

	MaxHopCount           int `json:"max_hop_count"`
	SuspiciousServerScore int `json:"suspicious_server_score"`

	SuspiciousServers []string `json:"suspicious_servers"`
	OpenRelayPatterns []string `json:"open_relay_patterns"`

	CacheSize int           `json:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns default header validation configuration.
func DefaultConfig() *Config {
	return &Config{
		EnableSPF:             true,
		EnableDKIM:            true,
		EnableDMARC:           true,
		DNSTimeout:            5 * time.Second,
		MaxHopCount:           15,
		SuspiciousServerScore: 75,
		SuspiciousServers: []string{
			"suspicious", "spam", "bulk", "mass", "marketing",
			"promo", "offer", "deal", "free", "win",
		},
		OpenRelayPatterns: []string{
			"unknown", "dynamic", "dhcp", "dial", "cable",
			"dsl", "adsl", "pool", "client", "user",
		},
		CacheSize: 1000,
		CacheTTL:  1 * time.Hour,
	}
}

// NewValidator creates a new header validator.
func NewValidator(config *Config) *Validator {
	if config == nil {
		config = DefaultConfig()
	}

	return &Validator{
		config: config,
		resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: config.DNSTimeout}
				return d.DialContext(ctx, network, address)
			},
		},
		spfCache:   make(map[string]*SPFResult),
		dmarcCache: make(map[string]*DMARCResult),
	}
}

// ValidateHeaders runs SPF/DKIM/DMARC, domain-alignment and Received-chain
// analysis over a parsed message and rolls the findings into a
// ValidationResult. DNS lookups mean this can block; callers on a hot path
// (the tokenizer) must never invoke it implicitly — see AuthDerivedTokens.
func (v *Validator) ValidateHeaders(msg *message.Message) *ValidationResult {
	start := time.Now()

	result := &ValidationResult{
		ValidatedAt: start,
		Anomalies:   make([]string, 0),
	}

	from := msg.Headers["From"]
	returnPath := msg.Headers["Return-Path"]
	received := v.extractReceivedHeaders(msg)

	fromDomain := v.extractDomain(from)
	returnPathDomain := v.extractDomain(returnPath)

	result.DomainAlignment = v.analyzeDomainAlignment(fromDomain, returnPathDomain)

	if v.config.EnableSPF && fromDomain != "" {
		result.SPF = v.validateSPF(fromDomain, v.extractClientIP(received))
	}

	if v.config.EnableDKIM {
		result.DKIM = v.validateDKIM(msg.Headers)
	}

	if v.config.EnableDMARC && fromDomain != "" {
		result.DMARC = v.validateDMARC(fromDomain, result.SPF, result.DKIM)
	}

	result.Routing = v.analyzeRouting(received)
	result.Anomalies = v.detectAnomalies(msg.Headers, fromDomain, returnPathDomain)

	result.AuthScore = v.calculateAuthScore(result)
	result.SuspiciScore = v.calculateSuspiciousScore(result)

	result.Duration = time.Since(start)
	return result
}

// validateSPF validates the SPF record for a domain.
func (v *Validator) validateSPF(domain, clientIP string) SPFResult {
	result := SPFResult{IPMatches: make([]string, 0)}

	if cached, exists := v.spfCache[domain]; exists {
		return *cached
	}

	ctx := context.Background()
	txtRecords, err := v.resolver.LookupTXT(ctx, domain)
	if err != nil {
		result.Result = "temperror"
		result.Explanation = fmt.Sprintf("DNS lookup failed: %v", err)
		return result
	}

	var spfRecord string
	for _, record := range txtRecords {
		if strings.HasPrefix(record, "v=spf1") {
			spfRecord = record
			break
		}
	}

	if spfRecord == "" {
		result.Result = "none"
		result.Explanation = "No SPF record found"
		return result
	}

	result.Record = spfRecord
	result.Result = v.evaluateSPF(spfRecord, clientIP, domain)
	result.Valid = result.Result == "pass"

	v.spfCache[domain] = &result
	return result
}

// evaluateSPF evaluates an SPF record against a client IP.
func (v *Validator) evaluateSPF(record, clientIP, domain string) string {
	if clientIP == "" {
		return "neutral"
	}

	mechanisms := strings.Fields(record)
	for _, mechanism := range mechanisms[1:] { // skip "v=spf1"
		switch {
		case strings.HasPrefix(mechanism, "ip4:"):
			cidr := strings.TrimPrefix(mechanism, "ip4:")
			if v.ipInCIDR(clientIP, cidr) {
				return "pass"
			}
		case strings.HasPrefix(mechanism, "ip6:"):
			continue // IPv6 not evaluated
		case strings.HasPrefix(mechanism, "include:"):
			includeDomain := strings.TrimPrefix(mechanism, "include:")
			if v.validateSPF(includeDomain, clientIP).Result == "pass" {
				return "pass"
			}
		case mechanism == "a":
			if v.checkARecord(domain, clientIP) {
				return "pass"
			}
		case mechanism == "mx":
			if v.checkMXRecord(domain, clientIP) {
				return "pass"
			}
		case strings.HasPrefix(mechanism, "-"):
			return "fail"
		case strings.HasPrefix(mechanism, "~"):
			return "softfail"
		}
	}

	return "neutral"
}

// validateDKIM validates the DKIM-Signature header, if present.
func (v *Validator) validateDKIM(headers map[string]string) DKIMResult {
	result := DKIMResult{
		Signatures: make([]string, 0),
		Domains:    make([]string, 0),
		Selectors:  make([]string, 0),
		Algorithms: make([]string, 0),
	}

	dkimHeader := headers["DKIM-Signature"]
	if dkimHeader == "" {
		result.Explanation = "No DKIM signature found"
		return result
	}

	result.Signatures = append(result.Signatures, dkimHeader)

	domain := v.extractDKIMParam(dkimHeader, "d")
	selector := v.extractDKIMParam(dkimHeader, "s")
	algorithm := v.extractDKIMParam(dkimHeader, "a")

	if domain != "" {
		result.Domains = append(result.Domains, domain)
	}
	if selector != "" {
		result.Selectors = append(result.Selectors, selector)
	}
	if algorithm != "" {
		result.Algorithms = append(result.Algorithms, algorithm)
	}

	result.Valid = domain != "" && selector != "" && algorithm != ""
	if result.Valid {
		result.Explanation = "DKIM signature appears valid"
	} else {
		result.Explanation = "DKIM signature malformed"
	}

	return result
}

// validateDMARC validates the domain's DMARC policy against the SPF/DKIM
// outcomes already computed.
func (v *Validator) validateDMARC(domain string, spf SPFResult, dkim DKIMResult) DMARCResult {
	result := DMARCResult{}

	if cached, exists := v.dmarcCache[domain]; exists {
		return *cached
	}

	dmarcDomain := "_dmarc." + domain
	ctx := context.Background()
	txtRecords, err := v.resolver.LookupTXT(ctx, dmarcDomain)
	if err != nil {
		result.Explanation = fmt.Sprintf("DMARC lookup failed: %v", err)
		return result
	}

	var dmarcRecord string
	for _, record := range txtRecords {
		if strings.HasPrefix(record, "v=DMARC1") {
			dmarcRecord = record
			break
		}
	}

	if dmarcRecord == "" {
		result.Explanation = "No DMARC record found"
		return result
	}

	result.Policy = v.extractDMARCParam(dmarcRecord, "p")
	result.Alignment = v.extractDMARCParam(dmarcRecord, "adkim")
	if result.Alignment == "" {
		result.Alignment = "relaxed"
	}

	if pct := v.extractDMARCParam(dmarcRecord, "pct"); pct != "" {
		if percentage, err := strconv.Atoi(pct); err == nil {
			result.Percentage = percentage
		}
	} else {
		result.Percentage = 100
	}

	result.Valid = spf.Result == "pass" || dkim.Valid
	if result.Valid {
		result.Explanation = "DMARC alignment satisfied"
	} else {
		result.Explanation = "DMARC alignment failed"
	}

	v.dmarcCache[domain] = &result
	return result
}

// analyzeDomainAlignment checks whether the From and Return-Path domains
// agree at DMARC's strict (exact match) and relaxed (organizational
// domain match) levels.
func (v *Validator) analyzeDomainAlignment(fromDomain, returnPathDomain string) DomainAlignment {
	alignment := DomainAlignment{
		FromDomain:       fromDomain,
		ReturnPathDomain: returnPathDomain,
	}

	if fromDomain != "" {
		alignment.FromOrgDomain = organizationalDomain(fromDomain)
	}
	if returnPathDomain != "" {
		alignment.ReturnPathOrgDomain = organizationalDomain(returnPathDomain)
	}

	if fromDomain == "" || returnPathDomain == "" {
		alignment.Aligned = true
		alignment.RelaxedAligned = true
		return alignment
	}

	alignment.Aligned = strings.EqualFold(fromDomain, returnPathDomain)
	alignment.RelaxedAligned = strings.EqualFold(alignment.FromOrgDomain, alignment.ReturnPathOrgDomain)

	if !alignment.Aligned {
		if alignment.RelaxedAligned {
			alignment.Issues = append(alignment.Issues, fmt.Sprintf(
				"Return-Path domain (%s) does not exactly match From domain (%s), but both fall under organizational domain %s",
				returnPathDomain, fromDomain, alignment.FromOrgDomain))
		} else {
			alignment.Issues = append(alignment.Issues, fmt.Sprintf(
				"Return-Path domain (%s) does not match From domain (%s) at either strict or relaxed alignment",
				returnPathDomain, fromDomain))
		}
	}

	return alignment
}

// organizationalDomain reduces a fully-qualified domain to its
// registrable eTLD+1 (mail.example.co.uk -> example.co.uk) via the public
// suffix list, falling back to a naive last-two-labels heuristic for
// domains the list doesn't recognize.
func organizationalDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))

	if etldPlusOne, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		return etldPlusOne
	}

	labels := strings.Split(domain, ".")
	if len(labels) <= 2 {
		return domain
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

var (
	receivedByFirstPattern = regexp.MustCompile(`^by\s+`)
	receivedFromPattern    = regexp.MustCompile(`(?i)^from\s+([^\s(]+)`)
	receivedByPattern      = regexp.MustCompile(`(?i)by\s+([^\s(]+)`)
	receivedWithPattern    = regexp.MustCompile(`(?i)by\s+[^\s(]+[^;]*?\s+with\s+([A-Z0-9]+)(?:\s|;)`)
	receivedIDPattern      = regexp.MustCompile(`(?i)\s+id\s+([^\s;()]+)`)
	receivedIPPattern      = regexp.MustCompile(`\[([^\]]+)\]`)
	receivedTimePattern    = regexp.MustCompile(`;\s*(.+)$`)
	receivedTZNamePattern  = regexp.MustCompile(`\s*\([^)]+\)\s*$`)
)

var receivedTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
}

// parseReceivedHeader pulls the from/by/with/id/ip/timestamp fields out of
// one Received: header value and resolves the client IP's reverse DNS.
func (v *Validator) parseReceivedHeader(raw string) ReceivedHop {
	var hop ReceivedHop
	normalized := strings.Join(strings.Fields(raw), " ")

	if !receivedByFirstPattern.MatchString(strings.TrimSpace(normalized)) {
		if m := receivedFromPattern.FindStringSubmatch(normalized); len(m) > 1 {
			hop.From = m[1]
		}
	}
	if m := receivedByPattern.FindStringSubmatch(normalized); len(m) > 1 {
		hop.By = m[1]
	}
	if m := receivedWithPattern.FindStringSubmatch(normalized); len(m) > 1 {
		hop.With = m[1]
	}
	if m := receivedIDPattern.FindStringSubmatch(normalized); len(m) > 1 {
		hop.ID = m[1]
	}
	if m := receivedIPPattern.FindStringSubmatch(normalized); len(m) > 1 {
		ip := strings.TrimPrefix(m[1], "IPv6:")
		if net.ParseIP(ip) != nil {
			hop.IP = ip
			if names, err := v.resolver.LookupAddr(context.Background(), ip); err == nil && len(names) > 0 {
				hop.Reverse = strings.TrimSuffix(names[0], ".")
			}
		}
	}
	if m := receivedTimePattern.FindStringSubmatch(normalized); len(m) > 1 {
		ts := receivedTZNamePattern.ReplaceAllString(strings.TrimSpace(m[1]), "")
		for _, format := range receivedTimeFormats {
			if parsed, err := time.Parse(format, ts); err == nil {
				hop.Timestamp = &parsed
				break
			}
		}
	}

	return hop
}

// analyzeRouting structurally parses every Received hop and flags
// suspicious-server patterns, open-relay patterns, missing reverse DNS,
// and chronological inconsistencies between consecutive hop timestamps.
func (v *Validator) analyzeRouting(received []string) RoutingResult {
	result := RoutingResult{
		HopCount:         len(received),
		Hops:             make([]ReceivedHop, 0, len(received)),
		SuspiciousHops:   make([]string, 0),
		OpenRelays:       make([]string, 0),
		GeoAnomalies:     make([]string, 0),
		TimingAnomalies:  make([]string, 0),
		ReverseDNSIssues: make([]string, 0),
	}

	var prevTimestamp *time.Time
	for i, raw := range received {
		lower := strings.ToLower(raw)

		for _, suspicious := range v.config.SuspiciousServers {
			if strings.Contains(lower, suspicious) {
				result.SuspiciousHops = append(result.SuspiciousHops,
					fmt.Sprintf("Hop %d: suspicious server pattern '%s'", i+1, suspicious))
			}
		}
		for _, pattern := range v.config.OpenRelayPatterns {
			if strings.Contains(lower, pattern) {
				result.OpenRelays = append(result.OpenRelays,
					fmt.Sprintf("Hop %d: open relay pattern '%s'", i+1, pattern))
			}
		}

		hop := v.parseReceivedHeader(raw)
		result.Hops = append(result.Hops, hop)

		if hop.IP != "" && hop.Reverse == "" {
			result.ReverseDNSIssues = append(result.ReverseDNSIssues,
				fmt.Sprintf("Hop %d: no reverse DNS for %s", i+1, hop.IP))
		}

		// Received headers are prepended by each relay in receipt order, so
		// hop 0 is the newest; a hop's timestamp should never postdate the
		// hop before it in the slice (which received the message later).
		if hop.Timestamp != nil && prevTimestamp != nil && hop.Timestamp.After(*prevTimestamp) {
			result.TimingAnomalies = append(result.TimingAnomalies,
				fmt.Sprintf("Hop %d: timestamp %s postdates the hop it was received by",
					i+1, hop.Timestamp.Format(time.RFC1123Z)))
		}
		if hop.Timestamp != nil {
			prevTimestamp = hop.Timestamp
		}
	}

	return result
}

// detectAnomalies flags structural header problems: From/Return-Path
// domain mismatch (once organizational-domain alignment is ruled out too),
// missing RFC 5322-required headers, and malformed Message-ID/Date values.
func (v *Validator) detectAnomalies(headers map[string]string, fromDomain, returnPathDomain string) []string {
	anomalies := make([]string, 0)

	if fromDomain != "" && returnPathDomain != "" &&
		!strings.EqualFold(fromDomain, returnPathDomain) &&
		!strings.EqualFold(organizationalDomain(fromDomain), organizationalDomain(returnPathDomain)) {
		anomalies = append(anomalies,
			fmt.Sprintf("Domain mismatch: From=%s, Return-Path=%s (no organizational-domain match either)", fromDomain, returnPathDomain))
	}

	criticalHeaders := []string{"From", "Date", "Message-ID"}
	for _, header := range criticalHeaders {
		if headers[header] == "" {
			anomalies = append(anomalies, fmt.Sprintf("Missing header: %s", header))
		}
	}

	if messageID := headers["Message-ID"]; messageID != "" {
		if !v.isValidMessageID(messageID) {
			anomalies = append(anomalies, "Invalid Message-ID format")
		}
	}

	if date := headers["Date"]; date != "" {
		if !v.isValidDate(date) {
			anomalies = append(anomalies, "Invalid Date header format")
		} else if parsedDate, err := time.Parse(time.RFC1123Z, date); err == nil {
			now := time.Now()
			if now.Sub(parsedDate) > 7*24*time.Hour {
				anomalies = append(anomalies, "Date too far in past")
			} else if parsedDate.Sub(now) > 24*time.Hour {
				anomalies = append(anomalies, "Date in future")
			}
		}
	}

	return anomalies
}

func (v *Validator) extractDomain(email string) string {
	if email == "" {
		return ""
	}

	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		start := strings.Index(email, "<") + 1
		end := strings.Index(email, ">")
		if start < end {
			email = email[start:end]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return ""
}

// extractReceivedHeaders returns every Received: header in encounter
// order, using Message.HeaderOrder so duplicate headers aren't collapsed
// the way a plain name->value map would collapse them.
func (v *Validator) extractReceivedHeaders(msg *message.Message) []string {
	var received []string
	for _, h := range msg.HeaderOrder {
		if h.Name == "Received" {
			received = append(received, h.Value)
		}
	}
	return received
}

func (v *Validator) extractClientIP(received []string) string {
	if len(received) == 0 {
		return ""
	}

	ipRegex := regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	matches := ipRegex.FindStringSubmatch(received[0])
	if len(matches) > 0 {
		return matches[0]
	}

	return ""
}

func (v *Validator) extractDKIMParam(header, param string) string {
	pattern := regexp.MustCompile(param + `=([^;]+)`)
	matches := pattern.FindStringSubmatch(header)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func (v *Validator) extractDMARCParam(record, param string) string {
	pattern := regexp.MustCompile(param + `=([^;]+)`)
	matches := pattern.FindStringSubmatch(record)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func (v *Validator) ipInCIDR(ip, cidr string) bool {
	if !strings.Contains(cidr, "/") {
		return ip == cidr
	}

	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}

	testIP := net.ParseIP(ip)
	if testIP == nil {
		return false
	}

	return ipNet.Contains(testIP)
}

func (v *Validator) checkARecord(domain, ip string) bool {
	ctx := context.Background()
	ips, err := v.resolver.LookupIPAddr(ctx, domain)
	if err != nil {
		return false
	}

	for _, addr := range ips {
		if addr.IP.String() == ip {
			return true
		}
	}

	return false
}

func (v *Validator) checkMXRecord(domain, ip string) bool {
	ctx := context.Background()
	mxRecords, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		return false
	}

	for _, mx := range mxRecords {
		if v.checkARecord(mx.Host, ip) {
			return true
		}
	}

	return false
}

func (v *Validator) isValidMessageID(messageID string) bool {
	if !strings.HasPrefix(messageID, "<") || !strings.HasSuffix(messageID, ">") {
		return false
	}

	content := messageID[1 : len(messageID)-1]
	parts := strings.Split(content, "@")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

func (v *Validator) isValidDate(date string) bool {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
	}

	for _, format := range formats {
		if _, err := time.Parse(format, date); err == nil {
			return true
		}
	}

	return false
}

func (v *Validator) calculateAuthScore(result *ValidationResult) float64 {
	score := 50.0

	switch result.SPF.Result {
	case "pass":
		score += 30
	case "fail":
		score -= 20
	case "softfail":
		score -= 10
	}

	if result.DKIM.Valid {
		score += 30
	} else {
		score -= 15
	}

	if result.DMARC.Valid {
		score += 20
	} else {
		score -= 10
	}

	if !result.DomainAlignment.Aligned {
		if result.DomainAlignment.RelaxedAligned {
			score -= 5
		} else {
			score -= 15
		}
	}

	score -= float64(len(result.Anomalies)) * 5

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score
}

func (v *Validator) calculateSuspiciousScore(result *ValidationResult) float64 {
	score := 0.0

	if result.SPF.Result == "fail" {
		score += 30
	} else if result.SPF.Result == "softfail" {
		score += 15
	}

	if !result.DKIM.Valid {
		score += 20
	}
	if !result.DMARC.Valid {
		score += 25
	}
	if !result.DomainAlignment.RelaxedAligned {
		score += 15
	}

	score += float64(len(result.Routing.SuspiciousHops)) * 10
	score += float64(len(result.Routing.OpenRelays)) * 15
	score += float64(len(result.Routing.ReverseDNSIssues)) * 5
	score += float64(len(result.Routing.TimingAnomalies)) * 10

	score += float64(len(result.Anomalies)) * 8

	if result.Routing.HopCount > v.config.MaxHopCount {
		score += 20
	}

	if score > 100 {
		score = 100
	}

	return score
}
