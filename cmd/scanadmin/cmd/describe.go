package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show detailed information about a resource",
}

var describeConfigCmd = &cobra.Command{
	Use:     "config ID",
	Aliases: []string{"cfg"},
	Short:   "Show details of a scan configuration",
	Args:    cobra.ExactArgs(1),
	RunE:    runDescribeConfig,
}

var describeRunCmd = &cobra.Command{
	Use:   "run ID",
	Short: "Show details of a scan run, including issue counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribeRun,
}

func init() {
	describeCmd.AddCommand(describeConfigCmd)
	describeCmd.AddCommand(describeRunCmd)
}

func runDescribeConfig(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get("/api/v1/scan-configurations/" + args[0])
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
		fmt.Printf("ID:              %s\n", resp.ID)
		fmt.Printf("Name:            %s\n", resp.Name)
		if resp.Description != "" {
			fmt.Printf("Description:     %s\n", resp.Description)
		}
		fmt.Printf("Data Source:     %d\n", resp.DataSourceID)
		fmt.Printf("Scan Type:       %s\n", resp.ScanType)
		fmt.Printf("Status:          %s\n", resp.Status)
		fmt.Printf("Concurrency:     %s\n", resp.ConcurrencyPolicy)
		fmt.Printf("Revision:        %d\n", resp.Revision)
		if resp.Schedule != nil && resp.Schedule.Enabled {
			fmt.Printf("Schedule:        %s (%s)\n", resp.Schedule.Cron, resp.Schedule.Timezone)
			fmt.Printf("Next Run:        %s\n", ptrStr(resp.Schedule.NextRunAt))
		} else {
			fmt.Printf("Schedule:        disabled\n")
		}
		fmt.Printf("Total Runs:      %d (%d ok, %d failed)\n", resp.TotalRuns, resp.SuccessfulRuns, resp.FailedRuns)
		fmt.Printf("Last Run:        %s", ptrStr(resp.LastRunID))
		if resp.LastRunStatus != "" {
			fmt.Printf(" (%s)", resp.LastRunStatus)
		}
		fmt.Println()
		if resp.CreatedBy != "" {
			fmt.Printf("Created By:      %s\n", resp.CreatedBy)
		}
		fmt.Printf("Created At:      %s\n", resp.CreatedAt)
		fmt.Printf("Updated At:      %s\n", resp.UpdatedAt)
	}
	return nil
}

// runResultsResponse matches GET /scan-runs/{id}/results.
type runResultsResponse struct {
	Run              *ScanRunResponse `json:"run"`
	IssuesBySeverity map[string]int64 `json:"issues_by_severity"`
	TotalIssues      int64            `json:"total_issues"`
}

func runDescribeRun(cmd *cobra.Command, args []string) error {
	client := mustClient()
	data, err := client.Get("/api/v1/scan-runs/" + args[0] + "/results")
	if err != nil {
		return err
	}

	var resp runResultsResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		r := resp.Run
		fmt.Printf("ID:              %s\n", r.ID)
		fmt.Printf("Configuration:   %s\n", r.ConfigurationID)
		if r.Name != "" {
			fmt.Printf("Name:            %s\n", r.Name)
		}
		fmt.Printf("Trigger:         %s", r.TriggerType)
		if r.TriggeredBy != "" {
			fmt.Printf(" (by %s)", r.TriggeredBy)
		}
		fmt.Println()
		fmt.Printf("Status:          %s\n", r.Status)
		fmt.Printf("Progress:        %d%%\n", r.Progress)
		if r.ErrorSummary != "" {
			fmt.Printf("Error:           %s\n", r.ErrorSummary)
		}
		fmt.Printf("Entities:        %d\n", r.EntitiesScanned)
		fmt.Printf("Started At:      %s\n", ptrStr(r.StartedAt))
		fmt.Printf("Completed At:    %s\n", ptrStr(r.CompletedAt))
		fmt.Printf("Duration:        %s\n", durationStr(r.DurationMS))
		fmt.Printf("Issues:          %d total\n", resp.TotalIssues)
		if len(resp.IssuesBySeverity) > 0 {
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
