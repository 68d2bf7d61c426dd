package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"
)

// Scrubber redacts secrets from content.
type Scrubber interface {
	Scrub(content string) *Result
	IsEnabled() bool
}

// Result is the outcome of a Scrub call.
type Result struct {
	Scrubbed      string         `json:"-"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
	Duration      time.Duration  `json:"duration"`
}

// Finding describes a redacted secret without its value.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Preview     string `json:"preview"`
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool {
	return r != nil && r.TotalFindings > 0
}

// GitleaksScrubber detects secrets with the gitleaks default rule set.
type GitleaksScrubber struct {
	allowlist *Allowlist
}

// New creates a GitleaksScrubber. The default detector config is loaded
// once here so that configuration problems surface at startup.
func New(allowlist *Allowlist) (*GitleaksScrubber, error) {
	s := &GitleaksScrubber{allowlist: allowlist}
	if _, err := s.detector(); err != nil {
		return nil, err
	}
	return s, nil
}

// detector builds a fresh detector; gitleaks detectors accumulate findings
// across calls, so one is not shared between scrubs.
func (s *GitleaksScrubber) detector() (*detect.Detector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	if err := s.allowlist.apply(&d.Config); err != nil {
		return nil, err
	}
	return d, nil
}

// Scrub replaces every detected secret with a [REDACTED:rule:preview] marker.
// Content that cannot be scanned is returned unchanged.
func (s *GitleaksScrubber) Scrub(content string) *Result {
	start := time.Now()
	d, err := s.detector()
	if err != nil {
		return &Result{Scrubbed: content, Duration: time.Since(start)}
	}

	res := redact(content, d.DetectString(content))
	res.Duration = time.Since(start)
	return res
}

// IsEnabled implements Scrubber.
func (s *GitleaksScrubber) IsEnabled() bool { return true }

// span is a claimed byte range of the original content.
type span struct {
	start, end int
	marker     string
}

// redact replaces secrets in the original content. Longer secrets claim
// their ranges first; a shorter secret inside a claimed range is skipped.
func redact(content string, found []report.Finding) *Result {
	res := &Result{Scrubbed: content, ByRule: map[string]int{}}

	sorted := make([]report.Finding, 0, len(found))
	for _, f := range found {
		if f.Secret != "" {
			sorted = append(sorted, f)
		}
	}
	if len(sorted) == 0 {
		return res
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	var spans []span
	overlaps := func(start, end int) bool {
		for _, sp := range spans {
			if start < sp.end && sp.start < end {
				return true
			}
		}
		return false
	}

	for _, f := range sorted {
		p := preview(f.Secret, 4)
		marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, p)
		for offset := 0; ; {
			idx := strings.Index(content[offset:], f.Secret)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(f.Secret)
			if !overlaps(start, end) {
				spans = append(spans, span{start: start, end: end, marker: marker})
			}
			offset = end
		}

		res.Findings = append(res.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Preview:     p,
		})
		res.ByRule[f.RuleID]++
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(content[last:sp.start])
		b.WriteString(sp.marker)
		last = sp.end
	}
	b.WriteString(content[last:])

	res.Scrubbed = b.String()
	res.TotalFindings = len(res.Findings)
	return res
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NoopScrubber returns content unchanged.
type NoopScrubber struct{}

// Scrub implements Scrubber.
func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Scrubbed: content}
}

// IsEnabled implements Scrubber.
func (NoopScrubber) IsEnabled() bool { return false }
