package adapter

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/commerce/domain"
)

const productSnapshotPath = "/products/snapshot"

// CatalogHTTPAdapter 实现了 port.Catalog，通过 HTTP 调用目录服务。
type CatalogHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewCatalogHTTPAdapter(client *httpclient.Client, baseURL string) *CatalogHTTPAdapter {
	return &CatalogHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type productSnapshotResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	SKU    string `json:"sku"`
	Price  string `json:"price"`
	Status string `json:"status"`
}

func (a *CatalogHTTPAdapter) GetProductSnapshot(ctx context.Context, productID string) (domain.ProductSnapshot, error) {
	params := url.Values{}
	params.Set("productId", productID)

	var resp productSnapshotResponse
	if err := a.client.GetJSON(ctx, a.baseURL+productSnapshotPath, params, &resp); err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return domain.ProductSnapshot{}, domain.ErrProductNotFound
		}
		return domain.ProductSnapshot{}, err
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return domain.ProductSnapshot{
		ID:     resp.ID,
		Name:   resp.Name,
		SKU:    resp.SKU,
		Price:  price,
		Status: domain.ProductStatus(resp.Status),
	}, nil
}
