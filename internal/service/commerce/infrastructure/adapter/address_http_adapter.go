package adapter

import (
	"context"
	"net/url"
	"strings"

	"storefront/internal/pkg/httpclient"
)

const addressOwnershipPath = "/addresses/ownership"

// AddressHTTPAdapter 实现了 port.AddressBook。
type AddressHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewAddressHTTPAdapter(client *httpclient.Client, baseURL string) *AddressHTTPAdapter {
	return &AddressHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type ownershipResponse struct {
	Owned bool `json:"owned"`
}

func (a *AddressHTTPAdapter) IsOwnedBy(ctx context.Context, addressID, customerID string) (bool, error) {
	params := url.Values{}
	params.Set("addressId", addressID)
	params.Set("customerId", customerID)

	var resp ownershipResponse
	if err := a.client.GetJSON(ctx, a.baseURL+addressOwnershipPath, params, &resp); err != nil {
		return false, err
	}
	return resp.Owned, nil
}
