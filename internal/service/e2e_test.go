package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/systemtwo/research/internal/analysis"
	rclient "github.com/systemtwo/research/internal/client"
	"github.com/systemtwo/research/internal/config"
	"github.com/systemtwo/research/internal/engine"
)

func newCoordinator(t *testing.T, base string) *analysis.Coordinator {
	t.Helper()
	c := analysis.NewCoordinator(
		rclient.NewHTTPClient(base, "", 0),
		rclient.ChannelFactory(rclient.DeriveWSURL(base), "", nil),
	)
	t.Cleanup(c.Close)
	return c
}

func waitForPhase(t *testing.T, c *analysis.Coordinator, want analysis.Phase) analysis.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.Snapshot(); snap.Phase == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap := c.Snapshot()
	t.Fatalf("phase = %s, want %s (snapshot %+v)", snap.Phase, want, snap)
	return snap
}

func TestEndToEndCompletes(t *testing.T) {
	_, srv := newTestServer(t, engine.NewScripted(0, nil).Run)
	c := newCoordinator(t, srv.URL)

	if err := c.RunAnalysis("AAPL"); err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	snap := waitForPhase(t, c, analysis.Completed)
	if !strings.HasPrefix(snap.Result, "# Investment report: AAPL") {
		t.Errorf("result = %q", snap.Result)
	}
	if snap.Fault != nil {
		t.Errorf("completed session carries fault %v", snap.Fault)
	}
	// Notices that arrived before completion are kept in order.
	all := []string{
		"Initializing research analyst...",
		"Initializing financial analyst...",
		"Initializing investment advisor...",
		"Starting research analysis for AAPL...",
		"Conducting financial analysis...",
		"Analyzing financial filings...",
		"Preparing investment recommendations...",
	}
	if !isPrefix(snap.Progress, all) {
		t.Errorf("progress %q is not an ordered prefix of %q", snap.Progress, all)
	}
}

func TestEndToEndUnknownSymbolFails(t *testing.T) {
	cfg := config.Default()
	_, srv := newTestServer(t, engine.NewScripted(0, cfg.Engine.UnknownSymbols).Run)
	c := newCoordinator(t, srv.URL)

	if err := c.RunAnalysis("ZZZZ"); err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	snap := waitForPhase(t, c, analysis.Failed)
	if snap.Fault == nil {
		t.Fatal("failed session has no fault")
	}
	// Either the HTTP response or the error event may settle the session first.
	if k := snap.Fault.Kind; k != analysis.TransportFault && k != analysis.RemoteAnalysisFault {
		t.Errorf("fault kind = %s", k)
	}
	if !strings.Contains(snap.Error, "unknown ticker symbol: ZZZZ") {
		t.Errorf("error = %q", snap.Error)
	}
	if snap.Result != "" {
		t.Errorf("failed session has result %q", snap.Result)
	}
}

func TestEndToEndSupersede(t *testing.T) {
	var mu sync.Mutex
	aborted := map[string]bool{}
	eng := func(ctx context.Context, subject string, progress func(string)) (string, error) {
		progress("Starting research analysis for " + subject + "...")
		if subject == "TSLA" {
			<-ctx.Done()
			mu.Lock()
			aborted[subject] = true
			mu.Unlock()
			return "", ctx.Err()
		}
		return subject + " report", nil
	}
	s, srv := newTestServer(t, eng)
	c := newCoordinator(t, srv.URL)

	if err := c.RunAnalysis("TSLA"); err != nil {
		t.Fatalf("RunAnalysis(TSLA): %v", err)
	}
	waitUntil(t, "TSLA run on the service", func() bool { return s.Runs().Len() == 1 })
	first := c.Snapshot()

	if err := c.RunAnalysis("MSFT"); err != nil {
		t.Fatalf("RunAnalysis(MSFT): %v", err)
	}
	snap := waitForPhase(t, c, analysis.Completed)
	if snap.Subject != "MSFT" || snap.Result != "MSFT report" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Generation <= first.Generation || snap.ID == first.ID {
		t.Errorf("MSFT session reused TSLA identity: %d/%s vs %d/%s", snap.Generation, snap.ID, first.Generation, first.ID)
	}
	if slices.Contains(snap.Progress, "Starting research analysis for TSLA...") {
		t.Errorf("TSLA notice leaked into MSFT session: %q", snap.Progress)
	}

	// Superseding aborts the TSLA request, which cancels its engine run.
	waitUntil(t, "TSLA run aborted", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return aborted["TSLA"]
	})
	if got := c.Snapshot(); got.Subject != "MSFT" || got.Phase != analysis.Completed {
		t.Errorf("late TSLA outcome changed the session: %+v", got)
	}
}

func isPrefix(got, all []string) bool {
	return len(got) <= len(all) && slices.Equal(got, all[:len(got)])
}
