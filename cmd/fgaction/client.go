package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"fgaction/internal/action"
	"fgaction/internal/api"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live actions of a running daemon",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var stopAll bool

var stopCmd = &cobra.Command{
	Use:   "stop [<id>...]",
	Short: "Stop live actions of a running daemon",
	Long:  `Stop the given action identifiers, or every live action with --all.`,
	RunE:  runStop,
}

var launchCmd = &cobra.Command{
	Use:   "launch <name>",
	Short: "Start a configured action on a running daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runLaunch,
}

func init() {
	stopCmd.Flags().BoolVar(&stopAll, "all", false, "force stop every live action")
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

func request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := strings.TrimRight(apiAddr, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return httpClient.Do(req)
}

func readError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := request(cmd.Context(), http.MethodGet, "/actions", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	var live []api.LiveAction
	if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return printActions(cmd.OutOrStdout(), live, time.Now())
}

func printActions(w io.Writer, live []api.LiveAction, now time.Time) error {
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(live)
	}

	if len(live) == 0 {
		fmt.Fprintln(w, "No live actions")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Strategy", "Task", "Title", "Progress", "Age")
	for _, la := range live {
		age := "-"
		if !la.StartedAt.IsZero() {
			age = now.Sub(la.StartedAt).Truncate(time.Second).String()
		}
		if err := table.Append(la.ID.String(), la.Strategy.String(), la.Config.TaskName, la.Config.Title, formatProgress(la.Config.Progress), age); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatProgress(p action.Progress) string {
	switch {
	case p.Indeterminate && p.Current > 0:
		return fmt.Sprintf("%d …", p.Current)
	case p.Indeterminate:
		return "…"
	case p.Max > 0:
		return fmt.Sprintf("%d/%d", p.Current, p.Max)
	default:
		return "-"
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	if stopAll {
		return stopEverything(cmd)
	}
	if len(args) == 0 {
		return fmt.Errorf("give at least one action id or --all")
	}

	for _, arg := range args {
		id, err := action.ParseID(arg)
		if err != nil {
			return err
		}
		resp, err := request(cmd.Context(), http.MethodDelete, "/actions/"+id.String(), nil)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return readError(resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", id)
	}
	return nil
}

func stopEverything(cmd *cobra.Command) error {
	resp, err := request(cmd.Context(), http.MethodDelete, "/actions", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Fprintln(cmd.OutOrStdout(), "Stopped all actions")
		return nil
	case http.StatusMultiStatus:
		var body struct {
			Failures []api.StopFailure `json:"failures"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("ID", "Error")
		for _, f := range body.Failures {
			if err := table.Append(f.ID.String(), f.Error); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		return fmt.Errorf("%d action(s) failed to stop", len(body.Failures))
	default:
		return readError(resp)
	}
}

func runLaunch(cmd *cobra.Command, args []string) error {
	resp, err := request(cmd.Context(), http.MethodPost, "/launch/"+args[0], nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return readError(resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Launched %s\n", args[0])
	return nil
}
