// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ProbeStatus holds the result of probing one Gatekeep endpoint.
type ProbeStatus struct {
	Component  string `json:"component"`
	URL        string `json:"url,omitempty"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// probe components, in output order.
const (
	componentAPI       = "api"
	componentReadiness = "readiness"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running Gatekeep server",
		Long: `Probe the health endpoint of the HTTP API and the readiness probe of the
metrics server, reporting whether each one is running and healthy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "timeout for each probe")
	cmd.Flags().String("http-addr", "", "HTTP API address to probe")
	cmd.Flags().String("metrics-addr", "", "metrics server address to probe")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.timeout}
	statuses := []ProbeStatus{
		probe(cmd.Context(), client, componentAPI, appCfg.HTTP.Addr, "/health"),
	}
	if appCfg.Metrics.Addr != "" {
		statuses = append(statuses, probe(cmd.Context(), client, componentReadiness, appCfg.Metrics.Addr, "/healthz/readiness"))
	}

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(statuses)
	}
	cmd.Println(output)

	for _, s := range statuses {
		if !s.Healthy {
			return oops.Code("STATUS_UNHEALTHY").With("component", s.Component).Errorf("%s is not healthy", s.Component)
		}
	}
	return nil
}

// probe issues a GET to path on addr. Any 2xx answer is healthy.
func probe(ctx context.Context, client *http.Client, component, addr, path string) ProbeStatus {
	status := ProbeStatus{Component: component, URL: probeURL(addr, path)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, status.URL, nil)
	if err != nil {
		status.Error = fmt.Sprintf("invalid address: %v", err)
		return status
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.LatencyMS = time.Since(start).Milliseconds()
	status.StatusCode = resp.StatusCode
	status.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !status.Healthy {
		status.Error = resp.Status
	}
	return status
}

func probeURL(addr, path string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + path
	}
	return "http://" + addr + path
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tCODE\tLATENCY\tURL")
	_, _ = fmt.Fprintln(w, "---------\t------\t----\t-------\t---")
	for _, s := range statuses {
		if s.StatusCode == 0 {
			_, _ = fmt.Fprintf(w, "%s\tdown\t-\t-\t%s (%s)\n", s.Component, s.URL, s.Error)
			continue
		}
		state := "healthy"
		if !s.Healthy {
			state = "unhealthy"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\n", s.Component, state, s.StatusCode, s.LatencyMS, s.URL)
	}

	_ = w.Flush()
	return sb.String()
}

// formatStatusJSON formats the probes as JSON.
func formatStatusJSON(statuses []ProbeStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return string(data), nil
}
