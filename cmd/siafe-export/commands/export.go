package commands

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"bussola-backend/lib/configutil"
	"bussola-backend/lib/serviceutil"
	"bussola-backend/lib/siafe"
	"bussola-backend/lib/telemetry"
	"bussola-backend/lib/uidriver/cdp"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type BrowserConfig struct {
	CdpUrl     string `json:"cdp_url"`
	ChromePath string `json:"chrome_path"`
	Headless   bool   `json:"headless"`
}

type FilterConfig struct {
	Property  string `json:"property"`
	Operation string `json:"operation"`
	Value     string `json:"value"`
	Negate    bool   `json:"negate"`
}

type Config struct {
	User       string         `json:"user"`
	Password   string         `json:"password"`
	FiscalYear int            `json:"fiscal_year"`
	Ug         string         `json:"ug"`
	LoginUrl   string         `json:"login_url"`
	Browser    BrowserConfig  `json:"browser"`
	Filters    []FilterConfig `json:"filters"`
}

var exportTable *string
var exportCsv *string

func init() {
	exportTable = exportCmd.Flags().String("table", "empenho", "The document table to extract: empenho or liquidacao.")
	exportCsv = exportCmd.Flags().String("csv", "", "Write the records to this CSV file instead of stdout.")
	rootCmd.AddCommand(exportCmd)
}

func tableDescriptor(name string) (siafe.PanelDescriptor, error) {
	switch name {
	case "empenho":
		return siafe.TableCommitmentNotes, nil
	case "liquidacao":
		return siafe.TableSettlementNotes, nil
	}
	return siafe.PanelDescriptor{}, fmt.Errorf("unknown table %q, expected empenho or liquidacao", name)
}

// openTable walks the full navigation chain down to the document table
// and applies the configured filters. It is also the re-entry path after
// a scroll-induced page reload.
func openTable(ctx context.Context, session *siafe.Session, desc siafe.PanelDescriptor, filters []FilterConfig) (*siafe.Panel, error) {
	execution, err := session.Enter(ctx, siafe.PanelExecution)
	if err != nil {
		return nil, err
	}
	budget, err := execution.Enter(ctx, siafe.SubpanelBudgetExecution)
	if err != nil {
		return nil, err
	}
	panel, err := budget.Enter(ctx, desc)
	if err != nil {
		return nil, err
	}

	menu := panel.FilterMenu()
	if err := menu.Reset(ctx); err != nil {
		return nil, err
	}
	for _, f := range filters {
		spec := siafe.FilterSpec{
			Property:  f.Property,
			Operation: f.Operation,
			Value:     f.Value,
			Negate:    f.Negate,
		}
		if err := menu.Add(ctx, spec); err != nil {
			return nil, fmt.Errorf("adding filter on %q: %w", f.Property, err)
		}
	}
	if len(filters) > 0 {
		if err := menu.Apply(ctx); err != nil {
			return nil, err
		}
	}
	return panel, nil
}

func render(set *siafe.RecordSet) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)

	header := table.Row{}
	for _, col := range set.Columns() {
		header = append(header, col)
	}
	t.AppendHeader(header)
	for _, rec := range set.Records() {
		row := table.Row{}
		for _, col := range set.Columns() {
			row = append(row, rec[col])
		}
		t.AppendRow(row)
	}
	t.Render()
}

func writeCsv(set *siafe.RecordSet, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(set.Columns()); err != nil {
		return err
	}
	for _, rec := range set.Records() {
		row := make([]string, len(set.Columns()))
		for i, col := range set.Columns() {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

var exportCmd = &cobra.Command{
	Use:   "export [--table empenho|liquidacao] [--csv <path/to/output.csv>]",
	Short: "Signs in, applies the configured filters and extracts the document table.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		telemetry.InstrumentPerfStats(ctx)

		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		desc, err := tableDescriptor(*exportTable)
		if err != nil {
			serviceutil.Fatal("failed to resolve table", err)
		}

		drv, err := cdp.New(ctx, cdp.Options{
			CDPURL:     cfg.Browser.CdpUrl,
			ChromePath: cfg.Browser.ChromePath,
			Headless:   cfg.Browser.Headless,
		})
		if err != nil {
			serviceutil.Fatal("failed to start browser", err)
		}

		slog.Info("signing in", "user", cfg.User, "fiscal_year", cfg.FiscalYear)
		session, err := siafe.Connect(ctx, drv, siafe.Options{
			User:       cfg.User,
			Password:   cfg.Password,
			FiscalYear: cfg.FiscalYear,
			LoginURL:   cfg.LoginUrl,
		})
		if err != nil {
			serviceutil.Fatal("failed to sign in", err)
		}
		defer session.Close()
		// Fatal exits without unwinding defers; close the browser first
		// so no Chrome process is left behind.
		fail := func(message string, err error) {
			session.Close()
			serviceutil.Fatal(message, err)
		}
		slog.Info("signed in", "greeting", session.Greeting())

		if cfg.Ug != "" {
			ug, err := session.SetUG(ctx, cfg.Ug)
			if err != nil {
				fail("failed to select management unit", err)
			}
			slog.Info("management unit selected", "id", ug.ID, "name", ug.Name)
		}

		panel, err := openTable(ctx, session, desc, cfg.Filters)
		if err != nil {
			fail("failed to open table", err)
		}

		extractor := panel.Table()
		extractor.OnReload(func(ctx context.Context) error {
			_, err := openTable(ctx, session, desc, cfg.Filters)
			return err
		})

		t1 := time.Now()
		set, err := extractor.Records(ctx)
		if err != nil {
			fail("failed to extract records", err)
		}
		slog.Info("extraction time", "seconds", time.Since(t1).Seconds(), "records", set.Len())

		if *exportCsv != "" {
			if err := writeCsv(set, *exportCsv); err != nil {
				fail("failed to write csv", err)
			}
			slog.Info("wrote csv", "path", *exportCsv)
			return
		}
		render(set)
	},
}
