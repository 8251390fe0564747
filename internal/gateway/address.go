package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Mino1214/juncom-server/pkg/httpclient"
)

// Address is one hit from the postcode lookup API.
type Address struct {
	ZipCode      string `json:"zip_code"`
	RoadAddress  string `json:"road_address"`
	JibunAddress string `json:"jibun_address"`
}

// AddressClient proxies the public postcode lookup API.
type AddressClient struct {
	http    HTTPDoer
	baseURL string
	apiKey  string
}

// NewAddressClient creates an address lookup client.
func NewAddressClient(httpClient HTTPDoer, baseURL, apiKey string) *AddressClient {
	return &AddressClient{
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Search looks up addresses matching a keyword.
func (c *AddressClient) Search(ctx context.Context, keyword string, page, perPage int) ([]Address, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 10
	}

	params := url.Values{}
	params.Set("keyword", keyword)
	params.Set("currentPage", fmt.Sprintf("%d", page))
	params.Set("countPerPage", fmt.Sprintf("%d", perPage))
	params.Set("confmKey", c.apiKey)
	params.Set("resultType", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/addrlink/addrLinkApi.do?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create address request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("call address api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, httpclient.ParseResponseError(resp, "address-api")
	}

	// Response shape of the public postcode API.
	var payload struct {
		Results struct {
			Common struct {
				TotalCount string `json:"totalCount"`
				ErrorCode  string `json:"errorCode"`
				ErrorMsg   string `json:"errorMessage"`
			} `json:"common"`
			Juso []struct {
				ZipNo    string `json:"zipNo"`
				RoadAddr string `json:"roadAddr"`
				JibunAddr string `json:"jibunAddr"`
			} `json:"juso"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("decode address response: %w", err)
	}

	if code := payload.Results.Common.ErrorCode; code != "" && code != "0" {
		return nil, 0, fmt.Errorf("address api error %s: %s", code, payload.Results.Common.ErrorMsg)
	}

	addresses := make([]Address, len(payload.Results.Juso))
	for i, j := range payload.Results.Juso {
		addresses[i] = Address{
			ZipCode:      j.ZipNo,
			RoadAddress:  j.RoadAddr,
			JibunAddress: j.JibunAddr,
		}
	}

	var total int
	fmt.Sscanf(payload.Results.Common.TotalCount, "%d", &total)

	return addresses, total, nil
}
