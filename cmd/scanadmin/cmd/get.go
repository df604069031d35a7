package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getConfigsCmd = &cobra.Command{
	Use:     "configs",
	Aliases: []string{"config", "scan-configurations", "cfg"},
	Short:   "List scan configurations",
	RunE:    runGetConfigs,
}

var getRunsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run", "scan-runs"},
	Short:   "List scan runs",
	RunE:    runGetRuns,
}

var getIssuesCmd = &cobra.Command{
	Use:     "issues",
	Aliases: []string{"issue", "scan-issues"},
	Short:   "List scan issues",
	RunE:    runGetIssues,
}

func init() {
	// configs flags
	getConfigsCmd.Flags().Int64("data-source", 0, "Filter by data source ID")
	getConfigsCmd.Flags().String("status", "", "Filter by status (draft, active, paused, archived)")
	getConfigsCmd.Flags().String("scan-type", "", "Filter by scan type")
	getConfigsCmd.Flags().String("search", "", "Search by name or description")
	getConfigsCmd.Flags().Int("page", 1, "Page number")
	getConfigsCmd.Flags().Int("per-page", 20, "Items per page")

	// runs flags
	getRunsCmd.Flags().String("config", "", "Filter by configuration ID")
	getRunsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	getRunsCmd.Flags().String("trigger-type", "", "Filter by trigger type (manual, scheduled)")
	getRunsCmd.Flags().String("from", "", "From date (RFC3339)")
	getRunsCmd.Flags().String("to", "", "To date (RFC3339)")
	getRunsCmd.Flags().Int("page", 1, "Page number")
	getRunsCmd.Flags().Int("per-page", 20, "Items per page")

	// issues flags
	getIssuesCmd.Flags().String("run", "", "Filter by run ID")
	getIssuesCmd.Flags().String("config", "", "Filter by configuration ID")
	getIssuesCmd.Flags().String("severity", "", "Filter by severity (critical, high, medium, low)")
	getIssuesCmd.Flags().String("status", "", "Filter by status (detected, assigned, resolved)")
	getIssuesCmd.Flags().String("type", "", "Filter by issue type")
	getIssuesCmd.Flags().Int("page", 1, "Page number")
	getIssuesCmd.Flags().Int("per-page", 20, "Items per page")

	getCmd.AddCommand(getConfigsCmd)
	getCmd.AddCommand(getRunsCmd)
	getCmd.AddCommand(getIssuesCmd)
}

func pageParams(cmd *cobra.Command, params url.Values) {
	if v, _ := cmd.Flags().GetInt("page"); v > 0 {
		params.Set("page", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("per-page"); v > 0 {
		params.Set("per_page", strconv.Itoa(v))
	}
}

func runGetConfigs(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetInt64("data-source"); v > 0 {
		params.Set("data_source_id", strconv.FormatInt(v, 10))
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	if v, _ := cmd.Flags().GetString("scan-type"); v != "" {
		params.Set("scan_type", v)
	}
	if v, _ := cmd.Flags().GetString("search"); v != "" {
		params.Set("search", v)
	}
	pageParams(cmd, params)

	path := "/api/v1/scan-configurations"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ScanConfigListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "NAME", "TYPE", "SOURCE", "STATUS", "SCHEDULE", "RUNS", "LAST RUN", "CREATED")
		for _, c := range resp.Data {
			t.AddRow(c.ID, c.Name, c.ScanType, strconv.FormatInt(c.DataSourceID, 10), c.Status,
				scheduleStr(c.Schedule), strconv.Itoa(c.TotalRuns), c.LastRunStatus, shortTime(c.CreatedAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "NAME", "TYPE", "STATUS", "RUNS")
		for _, c := range resp.Data {
			t.AddRow(truncate(c.ID, 12), truncate(c.Name, 40), c.ScanType, c.Status, strconv.Itoa(c.TotalRuns))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetRuns(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		params.Set("configuration_id", v)
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	if v, _ := cmd.Flags().GetString("trigger-type"); v != "" {
		params.Set("trigger_type", v)
	}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		params.Set("from", v)
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		params.Set("to", v)
	}
	pageParams(cmd, params)

	path := "/api/v1/scan-runs"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ScanRunListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "CONFIG", "TRIGGER", "STATUS", "PROGRESS", "ENTITIES", "ISSUES", "STARTED", "DURATION")
		for _, r := range resp.Data {
			t.AddRow(r.ID, r.ConfigurationID, r.TriggerType, r.Status,
				fmt.Sprintf("%d%%", r.Progress), strconv.Itoa(r.EntitiesScanned), strconv.Itoa(r.IssuesFound),
				ptrStr(r.StartedAt), durationStr(r.DurationMS))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "CONFIG", "STATUS", "PROGRESS", "ISSUES")
		for _, r := range resp.Data {
			t.AddRow(truncate(r.ID, 12), truncate(r.ConfigurationID, 12), r.Status,
				fmt.Sprintf("%d%%", r.Progress), strconv.Itoa(r.IssuesFound))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetIssues(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("run"); v != "" {
		params.Set("run_id", v)
	}
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		params.Set("configuration_id", v)
	}
	if v, _ := cmd.Flags().GetString("severity"); v != "" {
		params.Set("severity", v)
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		params.Set("type", v)
	}
	pageParams(cmd, params)

	path := "/api/v1/scan-issues"
	if q := params.Encode(); q != "" {
		path += "?" + q
	}

	data, err := client.Get(path)
	if err != nil {
		return err
	}

	var resp ScanIssueListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "RUN", "SEVERITY", "TYPE", "TITLE", "STATUS", "ASSIGNEE", "DETECTED")
		for _, i := range resp.Data {
			t.AddRow(i.ID, i.RunID, i.Severity, i.Type, truncate(i.Title, 50), i.Status, i.Assignee, shortTime(i.DetectedAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "SEVERITY", "TITLE", "STATUS")
		for _, i := range resp.Data {
			t.AddRow(truncate(i.ID, 12), i.Severity, truncate(i.Title, 50), i.Status)
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func durationStr(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
