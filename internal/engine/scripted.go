package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Scripted walks the crew's steps with a fixed delay and writes a canned
// report. Subjects on the unknown list fail once research starts.
type Scripted struct {
	step    time.Duration
	unknown map[string]bool
}

func NewScripted(step time.Duration, unknown []string) *Scripted {
	s := &Scripted{step: step, unknown: make(map[string]bool, len(unknown))}
	for _, u := range unknown {
		s.unknown[strings.ToUpper(strings.TrimSpace(u))] = true
	}
	return s
}

func (s *Scripted) Run(ctx context.Context, subject string, progress func(string)) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(subject))

	for _, n := range setupNotices {
		progress(n)
		if err := sleep(ctx, s.step); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Investment report: %s\n", symbol)
	for i, t := range crewTasks {
		progress(t.noticeFor(symbol))
		if i == 0 && s.unknown[symbol] {
			return "", fmt.Errorf("unknown ticker symbol: %s", symbol)
		}
		if err := sleep(ctx, s.step); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", t.title, scriptedFinding(t, symbol))
	}
	return b.String(), nil
}

func scriptedFinding(t task, symbol string) string {
	switch t.title {
	case "Research summary":
		return fmt.Sprintf("Coverage of %s is steady. No unusual announcements in the last quarter.", symbol)
	case "Financial analysis":
		return fmt.Sprintf("%s trades in line with its sector on earnings multiples; leverage is moderate.", symbol)
	case "Filings review":
		return "The latest quarterly and annual filings show no material changes to risk factors."
	default:
		return fmt.Sprintf("**Hold.** %s shows balanced fundamentals; revisit after the next earnings report.", symbol)
	}
}
