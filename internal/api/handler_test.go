package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constantProduct/internal/service"
	"constantProduct/internal/storage/memory"
)

const (
	tokenA = "0x00000000000000000000000000000000000000aa"
	tokenB = "0x00000000000000000000000000000000000000bb"
	alice  = "0x1111111111111111111111111111111111111111"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	registry := prometheus.NewRegistry()
	svc := service.New(memory.NewBackend(), nil, service.NewMetrics("test", registry), service.Config{MaxRetries: 3}, nil)
	return NewApp(svc, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil)
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		if len(raw) > 0 && raw[0] == '{' {
			require.NoError(t, json.Unmarshal(raw, &out))
		}
	}
	return resp.StatusCode, out
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, http.MethodPost, "/accounts/"+alice+"/credit", `{"asset":"`+tokenA+`","amount":"2000"}`)
	require.Equal(t, http.StatusOK, status)
	status, body := do(t, app, http.MethodPost, "/accounts/"+alice+"/credit", `{"asset":"`+tokenB+`","amount":"1000"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000", body["balance"])

	status, body = do(t, app, http.MethodPost, "/pools", `{"asset_a":"`+tokenA+`","asset_b":"`+tokenB+`","fee_numerator":"0","fee_denominator":"1"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "0", body["reserve_a"])
	assert.NotContains(t, body, "price_a_in_b")

	status, body = do(t, app, http.MethodPost, "/pools/"+tokenA+"/"+tokenB+"/deposit", `{"account":"`+alice+`","amount_a":"1000","amount_b":"1000"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2000", body["shares"])

	status, body = do(t, app, http.MethodGet, "/pools/"+tokenA+"/"+tokenB+"/quote?input=100", "")
	require.Equal(t, http.StatusOK, status)
	quote := body["quote"].(map[string]any)
	assert.Equal(t, "90", quote["output"])
	assert.Equal(t, "a_to_b", quote["direction"])
	assert.Equal(t, "1", body["spot_price"])
	assert.Equal(t, "0.9", body["execution_price"])

	status, body = do(t, app, http.MethodPost, "/pools/"+tokenA+"/"+tokenB+"/swap", `{"account":"`+alice+`","input":"100","minimum_output":"91"}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["error"], "slippage")

	status, body = do(t, app, http.MethodPost, "/pools/"+tokenA+"/"+tokenB+"/swap", `{"account":"`+alice+`","input":"100","minimum_output":"90"}`)
	require.Equal(t, http.StatusOK, status)
	pool := body["pool"].(map[string]any)
	assert.Equal(t, "1100", pool["reserve_a"])
	assert.Equal(t, "910", pool["reserve_b"])

	status, body = do(t, app, http.MethodGet, "/pools/"+tokenB+"/"+tokenA, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.827272727272727273", body["price_a_in_b"])

	status, body = do(t, app, http.MethodPost, "/pools/"+tokenA+"/"+tokenB+"/withdraw", `{"account":"`+alice+`","lp_tokens":"2000"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1100", body["amount_a"])
	assert.Equal(t, "910", body["amount_b"])

	status, body = do(t, app, http.MethodGet, "/accounts/"+alice+"/balances/"+tokenB, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000", body["balance"])

	status, _ = do(t, app, http.MethodGet, "/pools", "")
	assert.Equal(t, http.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorStatuses(t *testing.T) {
	app := newTestApp(t)
	createBody := `{"asset_a":"` + tokenA + `","asset_b":"` + tokenB + `","fee_numerator":"3","fee_denominator":"1000"}`

	status, _ := do(t, app, http.MethodGet, "/pools/"+tokenA+"/"+tokenB, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, app, http.MethodPost, "/pools", createBody)
	require.Equal(t, http.StatusCreated, status)
	status, _ = do(t, app, http.MethodPost, "/pools", createBody)
	assert.Equal(t, http.StatusConflict, status)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad address", http.MethodGet, "/pools/0xnothex/" + tokenB, "", http.StatusBadRequest},
		{"zero fee denominator", http.MethodPost, "/pools", `{"asset_a":"` + tokenA + `","asset_b":"` + alice + `","fee_numerator":"3","fee_denominator":"0"}`, http.StatusBadRequest},
		{"same asset", http.MethodPost, "/pools", `{"asset_a":"` + tokenA + `","asset_b":"` + tokenA + `","fee_numerator":"3","fee_denominator":"1000"}`, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/deposit", `{"account":"` + alice + `","amount_a":"-1","amount_b":"1"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/deposit", `{"account":"` + alice + `","amount":"1"}`, http.StatusBadRequest},
		{"zero deposit", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/deposit", `{"account":"` + alice + `","amount_a":"0","amount_b":"1"}`, http.StatusBadRequest},
		{"unfunded deposit", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/deposit", `{"account":"` + alice + `","amount_a":"10","amount_b":"10"}`, http.StatusUnprocessableEntity},
		{"empty pool swap", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/swap", `{"account":"` + alice + `","input":"10"}`, http.StatusUnprocessableEntity},
		{"withdraw from empty pool", http.MethodPost, "/pools/" + tokenA + "/" + tokenB + "/withdraw", `{"account":"` + alice + `","lp_tokens":"1"}`, http.StatusUnprocessableEntity},
		{"quote without input", http.MethodGet, "/pools/" + tokenA + "/" + tokenB + "/quote", "", http.StatusBadRequest},
		{"amount above uint64", http.MethodPost, "/accounts/" + alice + "/credit", `{"asset":"` + tokenA + `","amount":"18446744073709551616"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStatusForUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusConflict, statusFor(fiber.NewError(http.StatusConflict, "x")))
}
