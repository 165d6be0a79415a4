package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/banshee-data/citysense/internal/api"
	"github.com/banshee-data/citysense/internal/httputil"
)

// statusCommand prints the live state and shock summary of a running node.
func statusCommand(ctx context.Context, w io.Writer, args []string, hc httputil.HTTPClient) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	nodeURL := fs.String("url", "http://localhost:8080", "Base URL of the node's web server")
	events := fs.Int("events", 5, "Number of recent events to list (0 lists none)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if hc == nil {
		hc = httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second})
	}
	c, err := api.NewClient(*nodeURL, hc)
	if err != nil {
		return err
	}

	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Environment: %s (light %d, %d transitions)\n", state.Environment.Label(), state.Light, state.Transitions)
	fmt.Fprintf(w, "Shocks:      %d", stats.Samples)
	if stats.Samples > 0 {
		fmt.Fprintf(w, " (mean %.0f, p95 %.0f, max %.0f)", stats.Mean, stats.P95, stats.Max)
	}
	fmt.Fprintln(w)

	keys := make([]string, 0, len(stats.Counts))
	for k := range stats.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, stats.Counts[k])
	}

	if *events <= 0 {
		return nil
	}
	recent, err := c.Events(ctx, *events)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Recent:")
	for _, e := range recent {
		fmt.Fprintf(w, "  %8dms %-11s shock=%-6d light=%-5d %s\n", e.UptimeMs, e.Kind, e.Shock, e.Light, e.Environment)
	}
	return nil
}
