package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenmarket/marketd/internal/interface/http/handlers"
	"github.com/urfave/cli/v2"
)

func TestClient(t *testing.T) {
	caller := "0x00000000000000000000000000000000000000a1"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/fee":
			if r.Method == http.MethodPost {
				assert.Equal(t, caller, r.Header.Get(handlers.CallerHeader))
				var req handlers.SetListingFeeRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				// nolint:errcheck
				json.NewEncoder(w).Encode(handlers.FeeResponse{Fee: req.Fee})
				return
			}
			// nolint:errcheck
			json.NewEncoder(w).Encode(handlers.FeeResponse{Fee: "25"})
		default:
			w.WriteHeader(http.StatusNotFound)
			// nolint:errcheck
			w.Write([]byte(
				`{"code":5,"name":"NO_SUCH_LISTING","message":"NO_SUCH_LISTING (5): listing 9 not found","metadata":{"token_id":"9"}}`,
			))
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, caller)

	t.Run("get", func(t *testing.T) {
		resp, err := get[handlers.FeeResponse](c, "/v1/fee")
		require.NoError(t, err)
		require.Equal(t, "25", resp.Fee)
	})

	t.Run("post", func(t *testing.T) {
		resp, err := post[handlers.FeeResponse](
			c, "/v1/fee", handlers.SetListingFeeRequest{Fee: "100"},
		)
		require.NoError(t, err)
		require.Equal(t, "100", resp.Fee)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := get[handlers.Listing](c, "/v1/listings/9")
		require.Error(t, err)

		var apiErr apiError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "NO_SUCH_LISTING", apiErr.Name)
		require.Equal(t, "9", apiErr.Metadata["token_id"])
	})
}

func TestRequireCaller(t *testing.T) {
	require.Error(t, newTestClient(t, "http://localhost", "").requireCaller())
	require.Error(t, newTestClient(t, "http://localhost", "0xnope").requireCaller())
	require.NoError(t, newTestClient(
		t, "http://localhost", "0x00000000000000000000000000000000000000a1",
	).requireCaller())
}

func TestFlagOrEnv(t *testing.T) {
	envCaller := "0x00000000000000000000000000000000000000b0"
	flagCaller := "0x00000000000000000000000000000000000000a1"

	t.Run("defaults", func(t *testing.T) {
		c := newTestClient(t, "", "")
		require.Equal(t, defaultUrl, c.url)
		require.Empty(t, c.caller)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("MARKETD_URL", "http://ledger:7080/")
		t.Setenv("MARKETD_CALLER", envCaller)

		c := newTestClient(t, "", "")
		require.Equal(t, "http://ledger:7080", c.url)
		require.Equal(t, envCaller, c.caller)
	})

	t.Run("flag wins over env", func(t *testing.T) {
		t.Setenv("MARKETD_CALLER", envCaller)

		c := newTestClient(t, "http://localhost:7080", flagCaller)
		require.Equal(t, "http://localhost:7080", c.url)
		require.Equal(t, flagCaller, c.caller)
	})
}

func newTestClient(t *testing.T, url, caller string) *client {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(urlFlagName, url, "")
	set.String(callerFlagName, caller, "")
	return newClient(cli.NewContext(cli.NewApp(), set, nil))
}
