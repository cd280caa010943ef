package siafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bussola-backend/lib/poll"
	"bussola-backend/lib/uidriver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrTableReloaded reports that a scroll caused the hosting page to reload
// the whole panel instead of advancing the virtualization window, and no
// re-entry callback was available to recover.
var ErrTableReloaded = errors.New("table view reloaded during extraction")

// Table extracts records from the virtualized result table of a panel.
type Table struct {
	p *Panel
	// reenter, when set, re-navigates to the table after a scroll-induced
	// page reload so extraction can resume.
	reenter func(ctx context.Context) error
}

// Table returns the extractor for the panel's result table.
func (p *Panel) Table() *Table {
	return &Table{p: p}
}

// OnReload installs the re-entry callback used to recover from a
// scroll-induced page reload.
func (t *Table) OnReload(reenter func(ctx context.Context) error) {
	t.reenter = reenter
}

func (t *Table) drv() uidriver.Driver {
	return t.p.s.drv
}

// Records harvests the whole virtualized table: rows are read window by
// window, deduplicated by full-row equality, and the scroll loop
// terminates once an iteration reveals nothing new. The walk is repeated
// from scratch on every call.
func (t *Table) Records(ctx context.Context) (*RecordSet, error) {
	ctx, span := tracer.Start(ctx, "siafe:Table.Records", trace.WithAttributes(
		attribute.String("panel", t.p.desc.Name),
	))
	defer span.End()

	// The portal silently caps results at 1000 rows while the limit
	// toggle is on, truncating the harvest in a non-obvious way.
	if err := t.forceLimitOff(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to disable row limit")
		return nil, err
	}

	columns, err := t.readHeader(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read table header")
		return nil, err
	}
	set := NewRecordSet(columns)

	reloads := 0
	// After a reload recovery the window restarts at the top, so one
	// growth-free iteration is expected and must not end the harvest.
	recovered := false
	for {
		before := set.Len()
		if err := t.harvestVisible(ctx, set); err != nil {
			return nil, err
		}
		if set.Len() == before && !recovered {
			break
		}
		recovered = false

		if err := t.drv().RunScript(ctx, tableScrollScript); err != nil {
			return nil, err
		}
		if err := poll.Settle(ctx, t.p.s.opts.Settle); err != nil {
			return nil, err
		}

		// A scroll occasionally reloads the hosting page instead of
		// advancing the window; losing the header probe distinguishes
		// that from legitimate exhaustion.
		if _, err := t.drv().Locate(ctx, locTableHeaderCell); err != nil {
			if !uidriver.Transient(err) {
				return nil, err
			}
			if t.reenter == nil || reloads >= reloadRecoveries {
				return nil, fmt.Errorf("%w: %v", ErrTableReloaded, err)
			}
			reloads++
			slog.WarnContext(ctx, "table view reloaded mid-extraction, re-entering", "recovery", reloads)
			if err := t.reenter(ctx); err != nil {
				return nil, err
			}
			recovered = true
		}
	}

	span.SetAttributes(attribute.Int("records", set.Len()))
	slog.InfoContext(ctx, "table extraction complete",
		"panel", t.p.desc.Name,
		"records", set.Len(),
		"reloads", reloads,
	)
	return set, nil
}

// forceLimitOff unchecks the row-count limit toggle regardless of its
// state at call time, confirming the change by polling the checkbox.
func (t *Table) forceLimitOff(ctx context.Context) error {
	toggle, err := t.drv().Locate(ctx, locTableLimitToggle)
	if err != nil {
		return err
	}
	on, err := limitToggleOn(ctx, toggle)
	if err != nil {
		return err
	}
	if !on {
		return nil
	}
	if err := toggle.Click(ctx); err != nil {
		return err
	}
	return poll.Until(ctx, poll.Config{Attempts: toggleAttempts, Interval: t.p.s.opts.PollInterval},
		func(ctx context.Context) (bool, error) {
			toggle, err := t.drv().Locate(ctx, locTableLimitToggle)
			if err != nil {
				return false, err
			}
			on, err := limitToggleOn(ctx, toggle)
			if err != nil {
				return false, err
			}
			return !on, nil
		})
}

func limitToggleOn(ctx context.Context, toggle uidriver.Element) (bool, error) {
	checked, present, err := toggle.Attribute(ctx, "checked")
	if err != nil {
		return false, err
	}
	return present && checked != "" && checked != "false", nil
}

// readHeader captures the column names once per extraction pass; the
// position → name mapping stays fixed for the capture.
func (t *Table) readHeader(ctx context.Context) ([]string, error) {
	cells, err := t.drv().LocateAll(ctx, locTableHeaderCell)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("table header: %w", uidriver.ErrNotFound)
	}
	columns := make([]string, len(cells))
	for i, cell := range cells {
		columns[i], err = cell.Text(ctx)
		if err != nil {
			return nil, err
		}
	}
	return columns, nil
}

// harvestVisible reads every currently-rendered row into the set. Rows
// invalidated mid-read by the virtualization are skipped; they are picked
// up again on the next iteration.
func (t *Table) harvestVisible(ctx context.Context, set *RecordSet) error {
	rows, err := t.drv().LocateAll(ctx, locTableRow)
	if err != nil {
		return err
	}
	for _, row := range rows {
		rec, err := readRow(ctx, row, set.Columns())
		if err != nil {
			if uidriver.Transient(err) {
				continue
			}
			return err
		}
		set.Add(rec)
	}
	return nil
}

// readRow zips cell texts against the header set by position.
func readRow(ctx context.Context, row uidriver.Element, columns []string) (Record, error) {
	cells, err := row.LocateAll(ctx, locTableCell)
	if err != nil {
		return nil, err
	}
	rec := Record{}
	for i, cell := range cells {
		if i >= len(columns) {
			break
		}
		text, err := cell.Text(ctx)
		if err != nil {
			return nil, err
		}
		rec[columns[i]] = text
	}
	return rec, nil
}
