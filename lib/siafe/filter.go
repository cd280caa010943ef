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

// ErrInvalidFilter reports a filter spec rejected before any remote
// interaction was attempted.
var ErrInvalidFilter = errors.New("invalid filter spec")

// placeholderProperty is the label of the reserved blank slot the menu
// always renders for adding a new filter. A row carrying it is not an
// active filter.
const placeholderProperty = "Selecione"

// FilterSpec is one filter over a result table: which property it
// constrains, the comparison operation, the operand and whether the
// operation is negated. Specs are immutable; the menu reconstructs them
// from the remote form on reads and drives the form to match on writes.
type FilterSpec struct {
	Property  string
	Operation string
	Value     string
	Negate    bool
}

// Equal reports field-wise identity. Operation and negation are part of a
// filter's identity, not just the value.
func (f FilterSpec) Equal(other FilterSpec) bool {
	return f.Property == other.Property &&
		f.Operation == other.Operation &&
		f.Value == other.Value &&
		f.Negate == other.Negate
}

func (f FilterSpec) valid() bool {
	return f.Property != "" && f.Property != placeholderProperty && f.Operation != ""
}

// FilterMenu drives the collapsible filter widget of one table panel. The
// remote row set can change out of band, so the filter collection is
// re-derived on every read, never cached.
type FilterMenu struct {
	p *Panel
}

// FilterMenu returns the filter menu of the table panel.
func (p *Panel) FilterMenu() *FilterMenu {
	return &FilterMenu{p: p}
}

func (m *FilterMenu) drv() uidriver.Driver {
	return m.p.s.drv
}

// Visible reports whether the menu body is expanded. The widget exposes no
// expanded attribute; presence of the header marker element is the only
// observable. A stale header reads as collapsed; a header that cannot be
// located at all is a structural failure and surfaces as such.
func (m *FilterMenu) Visible(ctx context.Context) (bool, error) {
	header, err := m.drv().Locate(ctx, locFilterHeader)
	if err != nil {
		if uidriver.IsStale(err) {
			return false, nil
		}
		return false, err
	}
	marks, err := header.LocateAll(ctx, locVisibleMarker)
	if err != nil {
		if uidriver.IsStale(err) {
			return false, nil
		}
		return false, err
	}
	return len(marks) > 0, nil
}

// SetVisible toggles the menu only when the observed state differs from
// the target.
func (m *FilterMenu) SetVisible(ctx context.Context, target bool) error {
	current, err := m.Visible(ctx)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}
	return m.Toggle(ctx)
}

// Toggle flips the menu body's visibility. The toggle click sometimes
// lands before the control has attached its handler, so the click is
// reissued every fifth poll iteration until the observed state flips.
func (m *FilterMenu) Toggle(ctx context.Context) error {
	entry, err := m.Visible(ctx)
	if err != nil {
		return err
	}

	iteration := 0
	return poll.Until(ctx, poll.Config{Attempts: toggleAttempts, Interval: m.p.s.opts.PollInterval},
		func(ctx context.Context) (bool, error) {
			if iteration%toggleClickEvery == 0 {
				header, err := m.drv().Locate(ctx, locFilterHeader)
				if err != nil {
					return false, err
				}
				button, err := header.Locate(ctx, locFilterToggle)
				if err != nil {
					return false, err
				}
				if err := button.Click(ctx); err != nil {
					return false, err
				}
			}
			iteration++

			current, err := m.Visible(ctx)
			if err != nil {
				return false, err
			}
			return current != entry, nil
		})
}

// Filters enumerates the active filters in on-screen order. Reserved blank
// slots are excluded.
func (m *FilterMenu) Filters(ctx context.Context) ([]FilterSpec, error) {
	ctx, span := tracer.Start(ctx, "siafe:FilterMenu.Filters")
	defer span.End()

	if err := m.SetVisible(ctx, true); err != nil {
		return nil, err
	}
	body, err := m.drv().Locate(ctx, locFilterBody)
	if err != nil {
		return nil, err
	}
	rows, err := body.LocateAll(ctx, locFilterRow)
	if err != nil {
		return nil, err
	}

	var filters []FilterSpec
	for _, row := range rows {
		spec, ok, err := readFilterRow(ctx, row)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read filter row")
			return nil, err
		}
		if ok {
			filters = append(filters, spec)
		}
	}
	return filters, nil
}

// readFilterRow reconstructs the spec of one row. Rows whose property is
// the placeholder report ok=false.
func readFilterRow(ctx context.Context, row uidriver.Element) (FilterSpec, bool, error) {
	property, err := row.Locate(ctx, locFilterProperty)
	if err != nil {
		return FilterSpec{}, false, err
	}
	label, present, err := property.Attribute(ctx, "title")
	if err != nil {
		return FilterSpec{}, false, err
	}
	if !present || label == "" || label == placeholderProperty {
		return FilterSpec{}, false, nil
	}

	negateBox, err := row.Locate(ctx, locFilterNegate)
	if err != nil {
		return FilterSpec{}, false, err
	}
	checked, present, err := negateBox.Attribute(ctx, "checked")
	if err != nil {
		return FilterSpec{}, false, err
	}
	negate := present && checked != "" && checked != "false"

	operator, err := row.Locate(ctx, locFilterOperator)
	if err != nil {
		return FilterSpec{}, false, err
	}
	operation, _, err := operator.Attribute(ctx, "title")
	if err != nil {
		return FilterSpec{}, false, err
	}

	value, err := readFilterValue(ctx, row)
	if err != nil {
		return FilterSpec{}, false, err
	}

	return FilterSpec{
		Property:  label,
		Operation: operation,
		Value:     value,
		Negate:    negate,
	}, true, nil
}

// readFilterValue prefers the selectable value field's display text and
// falls back to the free-text input's raw value: the form renders one or
// the other depending on the selected property and operation.
func readFilterValue(ctx context.Context, row uidriver.Element) (string, error) {
	sel, err := row.Locate(ctx, locFilterValueSel)
	if err == nil {
		display, present, err := sel.Attribute(ctx, "title")
		if err == nil && present && display != "" {
			return display, nil
		}
		if err != nil && !uidriver.Transient(err) {
			return "", err
		}
	} else if !uidriver.Transient(err) {
		return "", err
	}

	input, err := row.Locate(ctx, locFilterValueIn)
	if err != nil {
		return "", err
	}
	raw, _, err := input.Attribute(ctx, "value")
	return raw, err
}

// lastSlot resolves the always-present empty row used to input a new
// filter. It is re-resolved after every state-changing action because
// property and operator selection re-render the row set.
func (m *FilterMenu) lastSlot(ctx context.Context) (uidriver.Element, error) {
	body, err := m.drv().Locate(ctx, locFilterBody)
	if err != nil {
		return nil, err
	}
	rows, err := body.LocateAll(ctx, locFilterRow)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("filter menu has no row slots: %w", uidriver.ErrNotFound)
	}
	return rows[len(rows)-1], nil
}

// Add drives the form to contain spec as a new filter. Invalid specs are
// rejected before any remote interaction.
func (m *FilterMenu) Add(ctx context.Context, spec FilterSpec) error {
	ctx, span := tracer.Start(ctx, "siafe:FilterMenu.Add", trace.WithAttributes(
		attribute.String("property", spec.Property),
		attribute.String("operation", spec.Operation),
	))
	defer span.End()

	if !spec.valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidFilter, spec)
	}
	if err := m.SetVisible(ctx, true); err != nil {
		return err
	}

	slot, err := m.lastSlot(ctx)
	if err != nil {
		return err
	}
	property, err := slot.Locate(ctx, locFilterProperty)
	if err != nil {
		return err
	}
	if err := property.SelectByLabel(ctx, spec.Property); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "property selection failed")
		return fmt.Errorf("property %q: %w", spec.Property, err)
	}

	if spec.Negate {
		slot, err = m.lastSlot(ctx)
		if err != nil {
			return err
		}
		negate, err := slot.Locate(ctx, locFilterNegate)
		if err != nil {
			return err
		}
		if err := negate.Click(ctx); err != nil {
			return err
		}
	}

	if err := m.selectOperation(ctx, spec.Operation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation selection failed")
		return err
	}

	if err := m.setValue(ctx, spec.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "value entry failed")
		return err
	}

	slog.DebugContext(ctx, "added filter",
		"property", spec.Property,
		"operation", spec.Operation,
		"value", spec.Value,
		"negate", spec.Negate,
	)
	return nil
}

// selectOperation selects the operator and polls the read-back label until
// it reflects the request; the widget is slow to apply the selection.
func (m *FilterMenu) selectOperation(ctx context.Context, operation string) error {
	return poll.Until(ctx, poll.Config{Attempts: operatorAttempts, Interval: m.p.s.opts.PollInterval},
		func(ctx context.Context) (bool, error) {
			slot, err := m.lastSlot(ctx)
			if err != nil {
				return false, err
			}
			operator, err := slot.Locate(ctx, locFilterOperator)
			if err != nil {
				return false, err
			}
			current, _, err := operator.Attribute(ctx, "title")
			if err != nil {
				return false, err
			}
			if current == operation {
				return true, nil
			}
			if err := operator.SelectByLabel(ctx, operation); err != nil {
				return false, err
			}
			return false, nil
		})
}

// setValue tries the selectable value field first and falls back to the
// free-text input when the select is absent, stale or has no matching
// option.
func (m *FilterMenu) setValue(ctx context.Context, value string) error {
	slot, err := m.lastSlot(ctx)
	if err != nil {
		return err
	}
	sel, err := slot.Locate(ctx, locFilterValueSel)
	if err == nil {
		err = sel.SelectByLabel(ctx, value)
		if err == nil {
			return nil
		}
	}
	if !uidriver.Transient(err) && !uidriver.IsOptionNotFound(err) {
		return err
	}

	slot, err = m.lastSlot(ctx)
	if err != nil {
		return err
	}
	input, err := slot.Locate(ctx, locFilterValueIn)
	if err != nil {
		return err
	}
	return input.SendKeys(ctx, value)
}

// Apply commits pending edits by clicking outside the row slots, then
// collapses the menu.
func (m *FilterMenu) Apply(ctx context.Context) error {
	body, err := m.drv().Locate(ctx, locFilterBody)
	if err != nil {
		return err
	}
	if err := body.Click(ctx); err != nil {
		return err
	}
	return m.SetVisible(ctx, false)
}

// Reset clears all existing filters.
func (m *FilterMenu) Reset(ctx context.Context) error {
	if err := m.SetVisible(ctx, true); err != nil {
		return err
	}
	header, err := m.drv().Locate(ctx, locFilterHeader)
	if err != nil {
		return err
	}
	reset, err := header.Locate(ctx, locFilterReset)
	if err != nil {
		return err
	}
	return reset.Click(ctx)
}
