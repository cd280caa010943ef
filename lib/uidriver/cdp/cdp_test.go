package cdp

import (
	"encoding/json"
	"errors"
	"testing"

	"bussola-backend/lib/uidriver"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/require"
)

func TestSelector(t *testing.T) {
	// ADF ids contain colons, which `#` selectors cannot carry unescaped
	require.Equal(t, `[id="loginBox:btnConfirmar"]`, selector(uidriver.ID("loginBox:btnConfirmar")))
	require.Equal(t, ".xzy", selector(uidriver.Class("xzy")))
	require.Equal(t, "[id*='dtTable::db']", selector(uidriver.CSS("[id*='dtTable::db']")))
}

func TestTranslateError(t *testing.T) {
	require.NoError(t, translateError(nil))

	stale := translateError(errors.New("could not find node with given id (-32000)"))
	require.ErrorIs(t, stale, uidriver.ErrStale)

	boom := errors.New("net::ERR_CONNECTION_REFUSED")
	require.Equal(t, boom, translateError(boom))
}

func TestAttributeValue(t *testing.T) {
	{
		// a live boolean property comes back string-coerced: a checkbox
		// unchecked through a click must read as present and "false"
		value, present, err := attributeValue(runtime.TypeString, json.RawMessage(`"false"`))
		require.NoError(t, err)
		require.True(t, present)
		require.Equal(t, "false", value)
	}
	{
		value, present, err := attributeValue(runtime.TypeString, json.RawMessage(`"2020NE00001"`))
		require.NoError(t, err)
		require.True(t, present)
		require.Equal(t, "2020NE00001", value)
	}
	{
		// null result: neither a primitive property nor an attribute
		_, present, err := attributeValue(runtime.TypeObject, json.RawMessage(`null`))
		require.NoError(t, err)
		require.False(t, present)
	}
}
