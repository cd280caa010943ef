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

// ErrNavigation reports a panel transition whose arrival could not be
// verified within the staleness retry budget.
var ErrNavigation = errors.New("panel navigation failed")

// PanelDescriptor describes one navigable section: the tab or link that
// opens it and the probe element whose readability confirms arrival.
// Panels without a description label (tables) leave HasDescription unset
// so Description never attempts a doomed probe read.
type PanelDescriptor struct {
	Name           string
	Tab            uidriver.Locator
	Probe          uidriver.Locator
	HasDescription bool
}

// Panel is a verified position in the portal's tab hierarchy. It borrows
// the session's driver and never closes it.
type Panel struct {
	s    *Session
	desc PanelDescriptor
}

// Enter opens a top-level panel and verifies arrival.
func (s *Session) Enter(ctx context.Context, desc PanelDescriptor) (*Panel, error) {
	return enter(ctx, s, desc)
}

// Enter opens a subpanel nested under p and verifies arrival.
func (p *Panel) Enter(ctx context.Context, desc PanelDescriptor) (*Panel, error) {
	return enter(ctx, p.s, desc)
}

// enter clicks the target tab and reads the arrival probe. The panel
// re-renders its subtree asynchronously after the click, occasionally
// invalidating the just-resolved references before the probe read lands;
// staleness retries the whole click+probe sequence.
func enter(ctx context.Context, s *Session, desc PanelDescriptor) (*Panel, error) {
	ctx, span := tracer.Start(ctx, "siafe:enter", trace.WithAttributes(
		attribute.String("panel", desc.Name),
	))
	defer span.End()

	err := poll.WithRetry(ctx, navigationAttempts,
		func(ctx context.Context) error {
			tab, err := s.drv.Locate(ctx, desc.Tab)
			if err != nil {
				return err
			}
			return tab.Click(ctx)
		},
		func(ctx context.Context) error {
			probe, err := s.drv.Locate(ctx, desc.Probe)
			if err != nil {
				return err
			}
			_, err = probe.Text(ctx)
			return err
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "arrival probe failed")
		if uidriver.Transient(err) {
			return nil, fmt.Errorf("entering %q: %w: %v", desc.Name, ErrNavigation, err)
		}
		return nil, fmt.Errorf("entering %q: %w", desc.Name, err)
	}

	slog.DebugContext(ctx, "entered panel", "panel", desc.Name)
	return &Panel{s: s, desc: desc}, nil
}

// Name returns the descriptor name of the panel.
func (p *Panel) Name() string {
	return p.desc.Name
}

// Description reads the panel's description label. Panels that
// structurally lack one report empty instead of probing.
func (p *Panel) Description(ctx context.Context) (string, error) {
	if !p.desc.HasDescription {
		return "", nil
	}
	probe, err := p.s.drv.Locate(ctx, p.desc.Probe)
	if err != nil {
		return "", err
	}
	return probe.Text(ctx)
}
