package siafe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bussola-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func TestFetchMeta(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div id="loginBox">...</div>
			<div id="pt_footer">SIAFE-Rio   Versão 7.1.3 - Build 2024.05.12</div>
		</body></html>`)
	}))
	defer server.Close()

	meta, err := FetchMeta(ctx, server.URL)
	require.NoError(t, err)
	require.Equal(t, Meta{Version: "7.1.3", Build: "2024.05.12"}, meta)
}

func TestFetchMetaNoFooter(t *testing.T) {
	cleanup := testutil.Setup(t, "lib/siafe")
	defer cleanup()
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="loginBox"></div></body></html>`)
	}))
	defer server.Close()

	_, err := FetchMeta(ctx, server.URL)
	require.Error(t, err)
}
