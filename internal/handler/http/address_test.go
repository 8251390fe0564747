package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mino1214/juncom-server/internal/gateway"
	"github.com/Mino1214/juncom-server/pkg/httpclient"
)

func newAddressRouter(t *testing.T, upstream http.HandlerFunc) http.Handler {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	client := httpclient.New(httpclient.Config{Timeout: 2 * time.Second})
	handler := NewAddressHandler(gateway.NewAddressClient(client, server.URL, "test-key"), testLogger())

	r := chi.NewRouter()
	r.Get("/api/address/search", handler.Search)
	return r
}

func TestSearchAddress_Success(t *testing.T) {
	router := newAddressRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "juncom tower", r.URL.Query().Get("keyword"))
		w.Write([]byte(`{
			"results": {
				"common": {"totalCount": "1", "errorCode": "0", "errorMessage": "ok"},
				"juso": [
					{"zipNo": "06236", "roadAddr": "123 Teheran-ro", "jibunAddr": "45 Yeoksam-dong"}
				]
			}
		}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/address/search?keyword=juncom+tower", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data       []map[string]interface{} `json:"data"`
		TotalCount int                      `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.TotalCount)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "06236", resp.Data[0]["zip_code"])
}

func TestSearchAddress_MissingKeyword(t *testing.T) {
	router := newAddressRouter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called without a keyword")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/address/search", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}

func TestSearchAddress_UpstreamError(t *testing.T) {
	router := newAddressRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"results": {
				"common": {"totalCount": "0", "errorCode": "E0001", "errorMessage": "invalid key"},
				"juso": []
			}
		}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/address/search?keyword=anything", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}
