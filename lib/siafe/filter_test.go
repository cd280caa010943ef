package siafe

import (
	"context"
	"testing"

	"bussola-backend/lib/testutil"
	"bussola-backend/lib/uidriver"
	"bussola-backend/lib/uidriver/fake"

	"github.com/stretchr/testify/require"
)

func TestFilterSpecEquality(t *testing.T) {
	base := FilterSpec{Property: "Fonte", Operation: "igual", Value: "104", Negate: false}

	require.True(t, base.Equal(FilterSpec{Property: "Fonte", Operation: "igual", Value: "104"}))
	// every field is part of a filter's identity
	require.False(t, base.Equal(FilterSpec{Property: "Credor", Operation: "igual", Value: "104"}))
	require.False(t, base.Equal(FilterSpec{Property: "Fonte", Operation: "diferente", Value: "104"}))
	require.False(t, base.Equal(FilterSpec{Property: "Fonte", Operation: "igual", Value: "105"}))
	require.False(t, base.Equal(FilterSpec{Property: "Fonte", Operation: "igual", Value: "104", Negate: true}))
}

// menuFixture models the collapsible filter widget: a header whose marker
// child is only present while expanded, a toggle button and a body of row
// slots.
type menuFixture struct {
	drv    *fake.Driver
	header *fake.Node
	body   *fake.Node
	marker *fake.Node
	toggle *fake.Node
	menu   *FilterMenu
}

func newMenuFixture(t *testing.T, rows ...*fake.Node) *menuFixture {
	t.Helper()
	s, drv := connectedSession(t)

	f := &menuFixture{
		drv:    drv,
		marker: &fake.Node{Classes: []string{"x16b"}},
		toggle: &fake.Node{ID: "pnl:sdtFilter::btn"},
		body:   &fake.Node{ID: "pnl:sdtFilter::body", Children: rows},
	}
	f.header = &fake.Node{ID: "pnl:sdtFilter::head", Children: []*fake.Node{f.toggle}}
	f.toggle.OnClick = func(*fake.Node) { f.setExpanded(!f.expanded()) }
	drv.Attach(f.header, f.body)

	panel := &Panel{s: s, desc: TableCommitmentNotes}
	f.menu = panel.FilterMenu()
	return f
}

func (f *menuFixture) expanded() bool {
	for _, c := range f.header.Children {
		if c == f.marker {
			return true
		}
	}
	return false
}

func (f *menuFixture) setExpanded(v bool) {
	if v == f.expanded() {
		return
	}
	if v {
		f.header.Children = append(f.header.Children, f.marker)
		return
	}
	kept := f.header.Children[:0]
	for _, c := range f.header.Children {
		if c != f.marker {
			kept = append(kept, c)
		}
	}
	f.header.Children = kept
}

// filterRowNode renders one active filter row the way the portal does:
// selects expose their chosen label through the title attribute, the
// value is either a select or a free-text input.
func filterRowNode(property, operation, value string, negate, valueAsSelect bool) *fake.Node {
	row := &fake.Node{Classes: []string{"xzy"}}
	row.Children = append(row.Children,
		&fake.Node{
			ID:       "r:cbx_col_sel_rtfFilter::content",
			Options:  []string{placeholderProperty, "Fonte", "Credor", "Unidade Gestora"},
			Selected: property,
		},
	)
	check := &fake.Node{ID: "r:chk_neg_rtfFilter::content", Attrs: map[string]string{}}
	if negate {
		check.Attrs["checked"] = "true"
	}
	row.Children = append(row.Children, check)
	row.Children = append(row.Children, &fake.Node{
		Attrs:    map[string]string{"name": "r:cbx_op_sel_rtfFilter"},
		Options:  []string{"igual", "diferente", "contém"},
		Selected: operation,
	})
	if valueAsSelect {
		row.Children = append(row.Children, &fake.Node{
			ID:       "r:select_value_rtfFilter::content",
			Options:  []string{value},
			Selected: value,
		})
	} else {
		row.Children = append(row.Children, &fake.Node{
			ID:    "r:in_value_rtfFilter::content",
			Value: value,
		})
	}
	return row
}

func placeholderRowNode() *fake.Node {
	return filterRowNode(placeholderProperty, "igual", "", false, false)
}

func TestFiltersRead(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t,
		filterRowNode("Fonte", "igual", "104", false, true),
		filterRowNode("Credor", "contém", "FECAM", true, false),
		placeholderRowNode(),
	)

	want := []FilterSpec{
		{Property: "Fonte", Operation: "igual", Value: "104"},
		{Property: "Credor", Operation: "contém", Value: "FECAM", Negate: true},
	}

	{
		// the placeholder slot never surfaces as an active filter
		got, err := f.menu.Filters(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.True(t, f.expanded(), "reading filters forces the menu visible")
	}
	{
		// reads with no intervening write are idempotent
		again, err := f.menu.Filters(ctx)
		require.NoError(t, err)
		require.Equal(t, want, again)
	}
}

// editableSlot wires the blank slot with the portal's re-render dynamics:
// selecting a property replaces the row subtree and invalidates the old
// references, and the operator select is slow to reflect its selection.
type editableSlot struct {
	opSelections int
	negateClicks int
}

func (e *editableSlot) install(f *menuFixture) {
	slot := placeholderRowNode()
	property := slot.Children[0]
	property.OnSelect = func(n *fake.Node, label string) {
		// re-render: fresh row subtree, old handles go stale
		for _, c := range slot.Children {
			c.Stale = true
		}
		slot.Stale = true

		edited := &fake.Node{Classes: []string{"xzy"}}
		edited.Children = append(edited.Children, &fake.Node{
			ID:       "r:cbx_col_sel_rtfFilter::content",
			Options:  []string{placeholderProperty, "Fonte", "Credor"},
			Selected: label,
		})
		check := &fake.Node{ID: "r:chk_neg_rtfFilter::content", Attrs: map[string]string{}}
		check.OnClick = func(n *fake.Node) {
			e.negateClicks++
			n.Attrs["checked"] = "true"
		}
		edited.Children = append(edited.Children, check)
		operator := &fake.Node{
			Attrs:   map[string]string{"name": "r:cbx_op_sel_rtfFilter"},
			Options: []string{"igual", "diferente", "contém"},
		}
		operator.OnSelect = func(n *fake.Node, lbl string) {
			e.opSelections++
			if e.opSelections < 2 {
				// selection does not take on the first attempt
				n.Selected = ""
			}
		}
		edited.Children = append(edited.Children, operator)
		edited.Children = append(edited.Children, &fake.Node{
			ID: "r:in_value_rtfFilter::content",
		})

		f.body.Children = []*fake.Node{edited}
	}
	f.body.Children = []*fake.Node{slot}
}

func TestAddFilterRoundTrip(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t)
	slot := &editableSlot{}
	slot.install(f)

	spec := FilterSpec{Property: "Fonte", Operation: "igual", Value: "104"}
	require.NoError(t, f.menu.Add(ctx, spec))

	// the slow operator widget required a reissued selection
	require.Equal(t, 2, slot.opSelections)

	got, err := f.menu.Filters(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(spec))
}

func TestAddFilterNegated(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t)
	slot := &editableSlot{}
	slot.install(f)

	spec := FilterSpec{Property: "Credor", Operation: "contém", Value: "FECAM", Negate: true}
	require.NoError(t, f.menu.Add(ctx, spec))
	require.Equal(t, 1, slot.negateClicks)

	got, err := f.menu.Filters(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(spec))
}

func TestAddFilterRejectsInvalidSpec(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t, placeholderRowNode())

	for _, bad := range []FilterSpec{
		{},
		{Property: placeholderProperty, Operation: "igual", Value: "1"},
		{Property: "Fonte", Value: "1"},
	} {
		err := f.menu.Add(ctx, bad)
		require.ErrorIs(t, err, ErrInvalidFilter)
	}
	// rejection happens before any remote interaction
	require.False(t, f.expanded())
}

func TestAddFilterUnknownProperty(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t, placeholderRowNode())
	err := f.menu.Add(ctx, FilterSpec{Property: "Inexistente", Operation: "igual", Value: "1"})
	require.ErrorIs(t, err, uidriver.ErrOptionNotFound)
}

func TestFiltersWidgetAbsent(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	s, _ := connectedSession(t)
	panel := &Panel{s: s, desc: TableCommitmentNotes}

	// a panel with no filter widget at all is a structural failure, not a
	// collapsed menu: it must surface as not-found rather than burn the
	// whole visibility poll budget
	_, err := panel.FilterMenu().Filters(ctx)
	require.ErrorIs(t, err, uidriver.ErrNotFound)
}

func TestToggleReissuesSwallowedClick(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t, placeholderRowNode())

	// the first click lands before the control attached its handler
	clicks := 0
	f.toggle.OnClick = func(*fake.Node) {
		clicks++
		if clicks >= 2 {
			f.setExpanded(!f.expanded())
		}
	}

	require.NoError(t, f.menu.Toggle(ctx))
	require.Equal(t, 2, clicks)
	require.True(t, f.expanded())
}

func TestResetAndApply(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	f := newMenuFixture(t,
		filterRowNode("Fonte", "igual", "104", false, true),
		placeholderRowNode(),
	)
	reset := &fake.Node{ID: "pnl:btnClearFilter::icon"}
	reset.OnClick = func(*fake.Node) {
		f.body.Children = []*fake.Node{placeholderRowNode()}
	}
	f.header.Children = append(f.header.Children, reset)

	bodyClicks := 0
	f.body.OnClick = func(*fake.Node) { bodyClicks++ }

	{
		require.NoError(t, f.menu.Reset(ctx))
		got, err := f.menu.Filters(ctx)
		require.NoError(t, err)
		require.Empty(t, got)
	}
	{
		// apply commits pending edits and collapses the menu
		require.NoError(t, f.menu.Apply(ctx))
		require.Equal(t, 1, bodyClicks)
		require.False(t, f.expanded())
	}
}
