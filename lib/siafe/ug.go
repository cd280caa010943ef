package siafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUGSelection reports that a management unit code matched zero or more
// than one available option; no selection is performed in either case.
var ErrUGSelection = errors.New("management unit selection failed")

// UG is a management unit, the budget-organization unit scoping which
// records the portal shows.
type UG struct {
	ID   string
	Name string
}

// SetUG scopes the session to the management unit with the given code.
// Option labels render as "<code> - <name>"; the code must select exactly
// one option.
func (s *Session) SetUG(ctx context.Context, code string) (UG, error) {
	ctx, span := tracer.Start(ctx, "siafe:SetUG", trace.WithAttributes(
		attribute.String("code", code),
	))
	defer span.End()

	control, err := s.drv.Locate(ctx, locUGControl)
	if err != nil {
		return UG{}, err
	}
	if err := control.Click(ctx); err != nil {
		return UG{}, err
	}

	options, err := s.drv.LocateAll(ctx, locUGOption)
	if err != nil {
		return UG{}, err
	}

	var matched UG
	var matchedIdx = -1
	matches := 0
	for i, opt := range options {
		label, err := opt.Text(ctx)
		if err != nil {
			return UG{}, err
		}
		if !strings.HasPrefix(label, code) {
			continue
		}
		matches++
		matchedIdx = i
		matched = UG{ID: code, Name: ugName(label)}
	}
	if matches != 1 {
		span.SetStatus(codes.Error, "ambiguous or unknown management unit code")
		return UG{}, fmt.Errorf("%w: code %q matched %d options", ErrUGSelection, code, matches)
	}

	if err := options[matchedIdx].Click(ctx); err != nil {
		return UG{}, err
	}
	slog.InfoContext(ctx, "management unit selected", "id", matched.ID, "name", matched.Name)
	return matched, nil
}

func ugName(label string) string {
	_, name, found := strings.Cut(label, " - ")
	if !found {
		return label
	}
	return name
}
