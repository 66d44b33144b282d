package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// fillerPrefix matches generic openers models put before the actual question.
var fillerPrefix = regexp.MustCompile(`(?i)^(?:` +
	`(?:sure|okay|ok|certainly|of course|absolutely|alright|great question|good question)\b[!,.:;]*\s*` +
	`|here(?:'s| is) (?:a |my |the |your |one )?(?:quick |short )?(?:follow[- ]up |reflective |opening |first |next )?question(?: for you)?\s*[:.!\-]*\s*` +
	`|(?:follow[- ]up |next )?question\s*:\s*` +
	`)`)

var quotePairs = [][2]string{{`"`, `"`}, {`'`, `'`}, {"“", "”"}, {"‘", "’"}, {"`", "`"}}

// CleanQuestion normalizes a generated question: newlines and runs of whitespace are
// collapsed, leading filler phrases and surrounding quotes are removed.
func CleanQuestion(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	for {
		before := s
		s = strings.TrimSpace(fillerPrefix.ReplaceAllString(s, ""))
		s = trimQuotes(s)
		if s == before {
			return s
		}
	}
}

func trimQuotes(s string) string {
	for _, q := range quotePairs {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}

// FallbackReport is returned whenever the closing report cannot be generated.
func FallbackReport() Report {
	return Report{
		Summary:         "Activity completed with limited data available",
		Insights:        []string{"Thank you for taking the time to reflect on your activity."},
		Effectiveness:   50,
		Recommendations: []string{"Keep logging your activities to receive more detailed insights."},
	}
}

var errEmptyReport = errors.New("report is missing required fields")

// ParseReport decodes a generated report. Markdown code fences are tolerated,
// effectiveness is clamped to [0,100] and list lengths are capped.
func ParseReport(raw string) (*Report, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var decoded struct {
		Summary         string   `json:"summary"`
		Insights        []string `json:"insights"`
		Effectiveness   *float64 `json:"effectiveness"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	report := &Report{
		Summary:         strings.TrimSpace(decoded.Summary),
		Insights:        nonEmpty(decoded.Insights, 4),
		Recommendations: nonEmpty(decoded.Recommendations, 3),
	}
	if report.Summary == "" || len(report.Insights) == 0 || len(report.Recommendations) == 0 || decoded.Effectiveness == nil {
		return nil, errEmptyReport
	}
	score := math.Round(*decoded.Effectiveness)
	report.Effectiveness = int(math.Max(0, math.Min(100, score)))
	return report, nil
}

func nonEmpty(items []string, max int) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
		if len(out) == max {
			break
		}
	}
	return out
}
