package siafe

import (
	"context"
	"testing"

	"bussola-backend/lib/testutil"
	"bussola-backend/lib/uidriver"
	"bussola-backend/lib/uidriver/fake"

	"github.com/stretchr/testify/require"
)

// connectedSession signs a session in against a minimal login fixture so
// navigation tests start from an authenticated state.
func connectedSession(t *testing.T) (*Session, *fake.Driver) {
	t.Helper()
	f := newLoginFixture("Seja bem-vindo(a), MARIA")
	s, err := Connect(context.Background(), f.drv, fastOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, f.drv
}

func TestEnterPanel(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	s, drv := connectedSession(t)

	desc := PanelDescriptor{
		Name:           "Execução",
		Tab:            uidriver.ID("tab:exec"),
		Probe:          uidriver.ID("probe:exec"),
		HasDescription: true,
	}
	tab := &fake.Node{ID: "tab:exec"}
	tab.OnClick = func(*fake.Node) {
		drv.Attach(&fake.Node{ID: "probe:exec", Text: "Execução Orçamentária e Financeira"})
	}
	drv.Attach(tab)

	p, err := s.Enter(ctx, desc)
	require.NoError(t, err)
	require.Equal(t, "Execução", p.Name())

	description, err := p.Description(ctx)
	require.NoError(t, err)
	require.Equal(t, "Execução Orçamentária e Financeira", description)
}

func TestEnterRetriesStaleness(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	s, drv := connectedSession(t)

	// the panel re-renders asynchronously after the click; the probe is
	// stale until the second click lands
	probe := &fake.Node{ID: "probe:sub", Text: "ready", Stale: true}
	clicks := 0
	tab := &fake.Node{ID: "tab:sub"}
	tab.OnClick = func(*fake.Node) {
		clicks++
		if clicks >= 2 {
			probe.Stale = false
		}
	}
	drv.Attach(tab, probe)

	_, err := s.Enter(ctx, PanelDescriptor{
		Name:  "Subpanel",
		Tab:   uidriver.ID("tab:sub"),
		Probe: uidriver.ID("probe:sub"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, clicks)
}

func TestEnterExhaustsRetries(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	s, drv := connectedSession(t)

	probe := &fake.Node{ID: "probe:dead", Text: "never", Stale: true}
	clicks := 0
	tab := &fake.Node{ID: "tab:dead", OnClick: func(*fake.Node) { clicks++ }}
	drv.Attach(tab, probe)

	_, err := s.Enter(ctx, PanelDescriptor{
		Name:  "Dead",
		Tab:   uidriver.ID("tab:dead"),
		Probe: uidriver.ID("probe:dead"),
	})
	require.ErrorIs(t, err, ErrNavigation)
	require.Equal(t, navigationAttempts, clicks)
}

func TestTablePanelHasNoDescription(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	s, drv := connectedSession(t)

	tab := &fake.Node{ID: "tab:table"}
	tab.OnClick = func(*fake.Node) {
		drv.Attach(&fake.Node{ID: "probe:table", Text: ""})
	}
	drv.Attach(tab)

	p, err := s.Enter(ctx, PanelDescriptor{
		Name:  "Nota de Empenho",
		Tab:   uidriver.ID("tab:table"),
		Probe: uidriver.ID("probe:table"),
	})
	require.NoError(t, err)

	// no probe read is attempted: a panel without the description label
	// must report empty rather than a guaranteed staleness failure
	description, err := p.Description(ctx)
	require.NoError(t, err)
	require.Empty(t, description)
}
