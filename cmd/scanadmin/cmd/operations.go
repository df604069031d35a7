package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger CONFIG-ID",
	Short: "Trigger a scan run for a configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel RUN-ID",
	Short: "Cancel a scan run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var pauseCmd = &cobra.Command{
	Use:   "pause CONFIG-ID",
	Short: "Pause a scan configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runPause,
}

var activateCmd = &cobra.Command{
	Use:   "activate CONFIG-ID",
	Short: "Activate a scan configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show scan metrics for a time window",
	RunE:  runSummary,
}

func init() {
	triggerCmd.Flags().String("by", "", "Who triggered the run")
	summaryCmd.Flags().String("from", "", "Window start (RFC3339)")
	summaryCmd.Flags().String("to", "", "Window end (RFC3339)")
	summaryCmd.Flags().Int64("data-source", 0, "Restrict to one data source ID")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	client := mustClient()

	var body any
	if by, _ := cmd.Flags().GetString("by"); by != "" {
		body = map[string]string{"triggered_by": by}
	}

	data, err := client.Post("/api/v1/scan-configurations/"+args[0]+"/runs", body)
	if err != nil {
		return err
	}

	var resp ScanRunResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Run %s queued for configuration %s.\n", resp.ID, resp.ConfigurationID)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Post("/api/v1/scan-runs/"+args[0]+"/cancel", nil)
	if err != nil {
		return err
	}

	var resp ScanRunResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Run %s is now %s.\n", resp.ID, resp.Status)
	}
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	return runConfigAction(args[0], "pause")
}

func runActivate(cmd *cobra.Command, args []string) error {
	return runConfigAction(args[0], "activate")
}

func runConfigAction(id, action string) error {
	client := mustClient()
	data, err := client.Post("/api/v1/scan-configurations/"+id+"/"+action, nil)
	if err != nil {
		return err
	}

	var resp ScanConfigResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Configuration %s is now %s.\n", resp.ID, resp.Status)
	}
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		params.Set("from", v)
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		params.Set("to", v)
	}
	if v, _ := cmd.Flags().GetInt64("data-source"); v != 0 {
		params.Set("data_source_id", strconv.FormatInt(v, 10))
	}

	path := "/api/v1/scan-metrics/summary"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp MetricsSummaryResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		fmt.Printf("Scan Metrics (%s to %s)\n", shortTime(resp.WindowFrom), shortTime(resp.WindowTo))
		if resp.DataSourceID != nil {
			fmt.Printf("  Data Source:       %d\n", *resp.DataSourceID)
		}
		fmt.Printf("  Total Runs:        %d\n", resp.TotalRuns)
		fmt.Printf("  Completed:         %d\n", resp.CompletedRuns)
		fmt.Printf("  Failed:            %d\n", resp.FailedRuns)
		fmt.Printf("  Cancelled:         %d\n", resp.CancelledRuns)
		fmt.Printf("  Active:            %d\n", resp.ActiveRuns)
		fmt.Printf("  Success Rate:      %.1f%%\n", resp.SuccessRate*100)
		fmt.Printf("  Avg Duration:      %s\n", durationStr(resp.AvgDurationMS))
		fmt.Printf("  Entities Scanned:  %d\n", resp.TotalEntitiesScanned)
		fmt.Printf("  Issues Found:      %d\n", resp.TotalIssuesFound)
		fmt.Printf("  Data Sources:      %d\n", resp.DistinctDataSources)
		if len(resp.IssuesBySeverity) > 0 {
			fmt.Printf("\nIssues By Severity:\n")
			t := newTable("  SEVERITY", "COUNT")
			for _, sev := range []string{"critical", "high", "medium", "low"} {
				if n, ok := resp.IssuesBySeverity[sev]; ok {
					t.AddRow("  "+sev, strconv.FormatInt(n, 10))
				}
			}
			t.Flush()
		}
	}
	return nil
}
