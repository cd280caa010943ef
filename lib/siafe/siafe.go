// Package siafe extracts structured budget records from SIAFE-Rio, the
// State of Rio de Janeiro's budget execution portal. The portal exposes no
// API; the only integration surface is its server-rendered, asynchronously
// updating UI, which this package drives through the uidriver contract as a
// state machine: every transition is verified by a probe read and every
// wait is bounded.
package siafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"bussola-backend/lib/poll"
	"bussola-backend/lib/uidriver"

	"go.opentelemetry.io/otel/codes"
)

// ErrConnection reports that a login could not be verified. The session is
// torn down; retrying is a caller concern.
var ErrConnection = errors.New("could not verify sign-in to the siafe basic module")

const (
	defaultTimeout = 10 * time.Second
	defaultSettle  = 5 * time.Second
	defaultPoll    = time.Second

	passwordFillAttempts = 3
	navigationAttempts   = 3
	toggleClickEvery     = 5
	toggleAttempts       = 30
	operatorAttempts     = 15
	reloadRecoveries     = 2
)

// Options configure one authenticated session against the Basic module.
type Options struct {
	User     string
	Password string
	// FiscalYear defaults to the current year. It must match an existing
	// option label in the login form.
	FiscalYear int
	// Timeout is the implicit wait the driver applies to locate calls.
	Timeout time.Duration
	// LoginURL overrides the production login surface (test fixtures).
	LoginURL string
	// Settle is the fixed delay tolerated after non-observable
	// state-changing actions (submit, scroll).
	Settle time.Duration
	// PollInterval paces the bounded polls awaiting an observable change.
	PollInterval time.Duration
}

func (o *Options) fillDefaults() {
	if o.FiscalYear == 0 {
		o.FiscalYear = time.Now().Year()
	}
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	if o.LoginURL == "" {
		o.LoginURL = loginURL
	}
	if o.Settle == 0 {
		o.Settle = defaultSettle
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaultPoll
	}
}

// Session is a signed-in connection to the Basic module. It exclusively
// owns the underlying driver; other components borrow it for the duration
// of one call chain and never close it.
type Session struct {
	drv      uidriver.Driver
	opts     Options
	greeting string

	closeOnce sync.Once
	closeErr  error
}

// Connect signs in to the Basic module and verifies the login through the
// homepage greeting probe. Connect owns the driver from the first call:
// any failure closes it, and failed verification is reported as
// ErrConnection.
func Connect(ctx context.Context, drv uidriver.Driver, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "siafe:Connect")
	defer span.End()

	opts.fillDefaults()
	s := &Session{drv: drv, opts: opts}

	if err := s.login(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login form interaction failed")
		return nil, errors.Join(err, s.Close())
	}

	// The portal re-renders the whole page after submit with no reliable
	// completion signal; tolerate the re-render instead of polling it.
	if err := poll.Settle(ctx, opts.Settle); err != nil {
		return nil, err
	}

	probe, err := s.drv.Locate(ctx, locGreeting)
	if err == nil {
		s.greeting, err = probe.Text(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "greeting probe failed")
		closeErr := s.Close()
		return nil, errors.Join(fmt.Errorf("%w: %v", ErrConnection, err), closeErr)
	}

	slog.InfoContext(ctx, "signed in to siafe basic module", "user", opts.User, "fiscal_year", opts.FiscalYear)
	return s, nil
}

func (s *Session) login(ctx context.Context) error {
	if err := s.drv.Navigate(ctx, s.opts.LoginURL); err != nil {
		return fmt.Errorf("opening login surface: %w", err)
	}

	slog.DebugContext(ctx, "entering user id")
	user, err := s.drv.Locate(ctx, locLoginUser)
	if err != nil {
		return err
	}
	if err := user.SendKeys(ctx, s.opts.User); err != nil {
		return err
	}

	slog.DebugContext(ctx, "selecting fiscal year", "fiscal_year", s.opts.FiscalYear)
	year, err := s.drv.Locate(ctx, locLoginFiscalYear)
	if err != nil {
		return err
	}
	if err := year.SelectByLabel(ctx, strconv.Itoa(s.opts.FiscalYear)); err != nil {
		return fmt.Errorf("fiscal year %d: %w", s.opts.FiscalYear, err)
	}

	if err := s.fillPassword(ctx); err != nil {
		return err
	}

	slog.DebugContext(ctx, "submitting credentials")
	submit, err := s.drv.Locate(ctx, locLoginSubmit)
	if err != nil {
		return err
	}
	return submit.Click(ctx)
}

// fillPassword types the password with a best-effort bounded retry: the
// form echoes the typed value asynchronously, so after each attempt the
// field is re-read and the attempt repeated while the echoed length does
// not match. Exhausting the budget is not fatal by itself; submission
// proceeds regardless.
func (s *Session) fillPassword(ctx context.Context) error {
	for attempt := 0; attempt < passwordFillAttempts; attempt++ {
		field, err := s.drv.Locate(ctx, locLoginPassword)
		if err != nil {
			return err
		}
		current, _, err := field.Attribute(ctx, "value")
		if err == nil && len(current) == len(s.opts.Password) {
			return nil
		}
		slog.DebugContext(ctx, "password not yet echoed, typing again", "attempt", attempt+1)
		if err := field.SendKeys(ctx, s.opts.Password); err != nil && !uidriver.Transient(err) {
			return err
		}
		if err := poll.Settle(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
	return nil
}

// Greeting returns the homepage greeting text read during login
// verification.
func (s *Session) Greeting() string {
	return s.greeting
}

// FiscalYear returns the fiscal year the session was established for.
func (s *Session) FiscalYear() int {
	return s.opts.FiscalYear
}

// Close terminates the underlying automation session exactly once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.drv.Close()
	})
	return s.closeErr
}
