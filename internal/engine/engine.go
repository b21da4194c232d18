// Package engine produces investment reports. The service treats an engine as
// opaque: it reports progress notices and eventually returns a report or an
// error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/systemtwo/research/internal/config"
)

// Engine runs one analysis. progress is called synchronously, in order, from
// the goroutine that called Run.
type Engine interface {
	Run(ctx context.Context, subject string, progress func(string)) (string, error)
}

var ErrMissingAPIKey = errors.New("engine: llm api key not set")

// New builds the engine named by cfg.Engine.Kind.
func New(cfg *config.Config) (Engine, error) {
	switch cfg.Engine.Kind {
	case config.EngineScripted:
		return NewScripted(cfg.Engine.StepDelay, cfg.Engine.UnknownSymbols), nil
	case config.EngineLLM:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("%w (set %s)", ErrMissingAPIKey, cfg.LLM.APIKeyEnv)
		}
		return NewLLM(key, cfg.LLM), nil
	default:
		return nil, fmt.Errorf("engine: unknown kind %q", cfg.Engine.Kind)
	}
}

// The crew: three analysts and the four tasks they work through.
var setupNotices = []string{
	"Initializing research analyst...",
	"Initializing financial analyst...",
	"Initializing investment advisor...",
}

type analyst struct {
	role      string
	objective string
}

var (
	researchAnalyst = analyst{
		role:      "Staff Research Analyst",
		objective: "Gather and interpret news, company announcements and market sentiment.",
	}
	financialAnalyst = analyst{
		role:      "Financial Analyst",
		objective: "Assess financial health, market performance and regulatory filings.",
	}
	investmentAdvisor = analyst{
		role:      "Private Investment Advisor",
		objective: "Combine the team's findings into a complete investment recommendation.",
	}
)

type task struct {
	title  string
	notice string // may contain %s for the subject
	by     analyst
	prompt string // may contain %s for the subject
}

var crewTasks = []task{
	{
		title:  "Research summary",
		notice: "Starting research analysis for %s...",
		by:     researchAnalyst,
		prompt: "Collect and summarize recent news, press releases and market analyses about %s. Note upcoming events such as earnings dates.",
	},
	{
		title:  "Financial analysis",
		notice: "Conducting financial analysis...",
		by:     financialAnalyst,
		prompt: "Analyze the financial health and stock performance of %s: key ratios (P/E, EPS growth, revenue trend, debt-to-equity) compared with industry peers.",
	},
	{
		title:  "Filings review",
		notice: "Analyzing financial filings...",
		by:     financialAnalyst,
		prompt: "Review the latest 10-Q and 10-K filings of %s. Highlight management discussion, risk factors and notable changes.",
	},
	{
		title:  "Recommendation",
		notice: "Preparing investment recommendations...",
		by:     investmentAdvisor,
		prompt: "Using the findings so far, write a complete investment recommendation for %s with a clear stance (buy, hold or sell), key risks and supporting evidence. Format the answer as markdown.",
	},
}

func (t task) noticeFor(subject string) string {
	if strings.Contains(t.notice, "%s") {
		return fmt.Sprintf(t.notice, subject)
	}
	return t.notice
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
