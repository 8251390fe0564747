package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mino1214/juncom-server/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHTTPClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Timeout:    2 * time.Second,
		MaxRetries: 0,
	})
}

func TestPaymentClient_GetResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/result", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "merchant-1", user)
		assert.Equal(t, "key-1", pass)

		var req struct {
			TID        string `json:"tid"`
			MerchantID string `json:"merchant_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "TID-9000", req.TID)

		json.NewEncoder(w).Encode(PaymentResult{
			TID:     "TID-9000",
			OrderID: "ORD-1",
			Status:  "paid",
			Amount:  49000,
		})
	}))
	defer server.Close()

	client := NewPaymentClient(newTestHTTPClient(), server.URL, "merchant-1", "key-1", newTestLogger())

	result, err := client.GetResult(context.Background(), "TID-9000")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", result.OrderID)
	assert.Equal(t, "paid", result.Status)
	assert.Equal(t, int64(49000), result.Amount)
}

func TestPaymentClient_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/cancel", r.URL.Path)

		var req struct {
			TID    string `json:"tid"`
			Reason string `json:"reason"`
			Amount int64  `json:"amount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "requested by user", req.Reason)
		assert.Equal(t, int64(49000), req.Amount)

		json.NewEncoder(w).Encode(PaymentResult{TID: req.TID, Status: "cancelled", Amount: req.Amount})
	}))
	defer server.Close()

	client := NewPaymentClient(newTestHTTPClient(), server.URL, "merchant-1", "key-1", newTestLogger())

	result, err := client.Cancel(context.Background(), "TID-9000", "requested by user", 49000)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", result.Status)
}

func TestPaymentClient_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "INVALID_TID", "message": "unknown transaction"},
		})
	}))
	defer server.Close()

	client := NewPaymentClient(newTestHTTPClient(), server.URL, "merchant-1", "key-1", newTestLogger())

	result, err := client.GetResult(context.Background(), "TID-bad")
	assert.Nil(t, result)
	assert.Error(t, err)
}

func TestAddressClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addrlink/addrLinkApi.do", r.URL.Path)
		assert.Equal(t, "juncom tower", r.URL.Query().Get("keyword"))
		assert.Equal(t, "test-key", r.URL.Query().Get("confmKey"))

		w.Write([]byte(`{
			"results": {
				"common": {"totalCount": "2", "errorCode": "0", "errorMessage": "ok"},
				"juso": [
					{"zipNo": "06236", "roadAddr": "123 Teheran-ro", "jibunAddr": "45 Yeoksam-dong"},
					{"zipNo": "06237", "roadAddr": "125 Teheran-ro", "jibunAddr": "47 Yeoksam-dong"}
				]
			}
		}`))
	}))
	defer server.Close()

	client := NewAddressClient(newTestHTTPClient(), server.URL, "test-key")

	addresses, total, err := client.Search(context.Background(), "juncom tower", 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, total)
	require.Len(t, addresses, 2)
	assert.Equal(t, "06236", addresses[0].ZipCode)
	assert.Equal(t, "123 Teheran-ro", addresses[0].RoadAddress)
}

func TestAddressClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"results": {
				"common": {"totalCount": "0", "errorCode": "E0001", "errorMessage": "invalid key"},
				"juso": []
			}
		}`))
	}))
	defer server.Close()

	client := NewAddressClient(newTestHTTPClient(), server.URL, "bad-key")

	addresses, total, err := client.Search(context.Background(), "anything", 1, 10)
	assert.Nil(t, addresses)
	assert.Zero(t, total)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "E0001")
}
