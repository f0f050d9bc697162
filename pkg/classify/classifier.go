// Package classify turns pull-request metadata into a ticket-required
// decision. Rules are bounded patterns evaluated in a fixed priority order;
// the first match wins and no external calls are made.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ccd-ops/renovate-jira/pkg/models"
)

// Reasons attached to decisions, surfaced in ticket descriptions, pull
// request comments and the run report.
const (
	REASON_SECURITY     = "Security / CVE detected"
	REASON_MAJOR        = "Semver-major or breaking change detected"
	REASON_CRITICAL_DEP = "Updates a critical dependency"
)

// DefaultCriticalDependencies is the built-in set of dependency names whose
// updates warrant a ticket. Per-repository names are unioned with it.
var DefaultCriticalDependencies = []string{
	"openssl",
	"spring-boot",
	"spring-security",
	"log4j",
	"jsonwebtoken",
	"mysql-connector",
	"postgresql",
	"hibernate",
}

var (
	cveRe         = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,}\b`)
	majorWordRe   = regexp.MustCompile(`\b(major|breaking|migration)\b`)
	updateMajorRe = regexp.MustCompile(`\bupdate\s*=\s*major\b`)
	// "to 3", "to v3", "to 3.2" — title only; body mentions are too noisy.
	toVersionRe = regexp.MustCompile(`\bto\s+v?([0-9]+)(?:\.[0-9]+)?\b`)
	// Renovate range style "2.9.3 -> 3.2.3" anywhere in title or body.
	versionRangeRe = regexp.MustCompile(`\b([0-9]+)(?:\.[0-9]+){0,2}\s*->\s*([0-9]+)(?:\.[0-9]+){0,2}\b`)
)

// Engine classifies pull requests. It is pure and safe for reuse across
// repositories; per-repository inputs are passed per call.
type Engine struct{}

// NewEngine creates a classification engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Classify maps pull-request metadata to a decision. createFor toggles
// creation per category; a nil map means the built-in toggles (security and
// major on, critical-dep off). criticalDeps is unioned with the built-in
// critical dependency names.
func (e *Engine) Classify(title, body string, labels []string, criticalDeps []string, createFor map[string]bool) models.Decision {
	if createFor == nil {
		createFor = map[string]bool{
			models.CATEGORY_SECURITY:     true,
			models.CATEGORY_MAJOR:        true,
			models.CATEGORY_CRITICAL_DEP: false,
		}
	}

	text := strings.ToLower(title + " " + body)

	if (mentionsCVE(title) || mentionsCVE(body) || hasLabel(labels, "security")) && createFor[models.CATEGORY_SECURITY] {
		return models.Decision{Category: models.CATEGORY_SECURITY, Reason: REASON_SECURITY}
	}

	if isMajorBump(title, text) && createFor[models.CATEGORY_MAJOR] {
		return models.Decision{Category: models.CATEGORY_MAJOR, Reason: REASON_MAJOR}
	}

	if touchesCriticalDependency(text, criticalDeps) && createFor[models.CATEGORY_CRITICAL_DEP] {
		return models.Decision{Category: models.CATEGORY_CRITICAL_DEP, Reason: REASON_CRITICAL_DEP}
	}

	return models.Decision{}
}

func mentionsCVE(text string) bool {
	return cveRe.MatchString(text)
}

// isMajorBump checks the major-change heuristics. text is the lower-cased
// title+body; the "to vN" form is only trusted in the title.
func isMajorBump(title, text string) bool {
	if majorWordRe.MatchString(text) {
		return true
	}
	if updateMajorRe.MatchString(text) {
		return true
	}
	if m := toVersionRe.FindStringSubmatch(strings.ToLower(title)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 1 {
			return true
		}
	}
	// Any range pair whose leading integers differ counts, not just the
	// first pair in the text.
	for _, m := range versionRangeRe.FindAllStringSubmatch(text, -1) {
		from, err1 := strconv.Atoi(m[1])
		to, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && from != to {
			return true
		}
	}
	return false
}

func touchesCriticalDependency(text string, criticalDeps []string) bool {
	for _, dep := range criticalDeps {
		if dep != "" && strings.Contains(text, strings.ToLower(dep)) {
			return true
		}
	}
	for _, dep := range DefaultCriticalDependencies {
		if strings.Contains(text, dep) {
			return true
		}
	}
	return false
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
