package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/equiptrack/internal/predict"
	"github.com/foxzi/equiptrack/internal/workspace"
)

var (
	predictEmail  string
	predictDB     string
	predictTable  string
	predictStatus string
	predictDate   string
	predictFormat string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the next maintenance date of every item in a table",
	Long: `Estimate when each item of an equipment table is next due for
maintenance, using the maintenance log of the same database and the
configured intervals per equipment type.

Examples:
  equiptrack predict --email sam@example.com --db plant --table equipment
  equiptrack predict --email sam@example.com --db plant --table equipment --status overdue --format csv`,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictEmail, "email", "", "Owner of the database")
	predictCmd.Flags().StringVar(&predictDB, "db", "", "Database name")
	predictCmd.Flags().StringVar(&predictTable, "table", "", "Equipment table")
	predictCmd.Flags().StringVar(&predictStatus, "status", "", "Only show one status (overdue, due-soon, on-schedule, never-serviced)")
	predictCmd.Flags().StringVar(&predictDate, "date", "", "Evaluate as of this date (default: today)")
	predictCmd.Flags().StringVar(&predictFormat, "format", "table", "Output format: table, csv, json")
	predictCmd.MarkFlagRequired("email")
	predictCmd.MarkFlagRequired("db")
	predictCmd.MarkFlagRequired("table")
}

func runPredict(cmd *cobra.Command, args []string) error {
	var status predict.Status
	if predictStatus != "" {
		st, err := predict.ParseStatus(predictStatus)
		if err != nil {
			return err
		}
		status = st
	}
	today := time.Now()
	if predictDate != "" {
		d, err := predict.ParseDate(predictDate)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		today = d
	}

	cfg, c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	path, err := c.Resolver.SelectDatabase(ctx, predictEmail, predictDB)
	if err != nil {
		return err
	}
	db, err := c.Pool.Open(ctx, path)
	if err != nil {
		return err
	}
	intervals, err := c.Settings.Table(predictTable)
	if err != nil {
		return err
	}

	preds, err := db.Predict(ctx, predictTable, intervals, today, predict.Options{
		DefaultIntervalDays: cfg.Maintenance.DefaultIntervalDays,
		DueSoonDays:         cfg.Maintenance.DueSoonDays,
	})
	if err != nil {
		return err
	}
	summary := predict.Summarize(preds)
	if status != "" {
		preds = predict.FilterByStatus(preds, status)
	}

	switch predictFormat {
	case "csv":
		return workspace.WriteCSV(os.Stdout, workspace.PredictionsTable(preds))
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(preds)
	case "table":
	default:
		return fmt.Errorf("unknown format %q", predictFormat)
	}

	if len(preds) == 0 {
		fmt.Println("No equipment found")
	} else {
		t := workspace.PredictionsTable(preds)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tLAST\tINTERVAL\tNEXT DUE\tDAYS\tSTATUS")
		fmt.Fprintln(w, "--\t----\t----\t--------\t--------\t----\t------")
		for i := range t.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.String(i, "equipment_id"),
				t.String(i, "equipment_type"),
				dash(t.String(i, "last_maintenance")),
				t.String(i, "interval_days"),
				dash(t.String(i, "next_due")),
				dash(t.String(i, "days_remaining")),
				t.String(i, "status"),
			)
		}
		w.Flush()
	}

	fmt.Println()
	for _, st := range predict.Statuses {
		fmt.Printf("%-15s %d\n", st+":", summary[st])
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
