// Package commerce talks to the Magento REST API for order lookups.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Order is the per-request view of a Magento order. Found=false means the
// increment ID did not match any order, which is a legitimate outcome, not
// an error.
type Order struct {
	Found     bool
	Status    string
	Total     float64
	CreatedAt string
}

type OrderStatusProvider interface {
	Lookup(ctx context.Context, orderID string) (Order, error)
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type ordersResponse struct {
	Items []struct {
		Status     string  `json:"status"`
		GrandTotal float64 `json:"grand_total"`
		CreatedAt  string  `json:"created_at"`
	} `json:"items"`
}

func NewClient(baseURL, adminToken string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   adminToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Lookup fetches an order by its increment ID using a Magento search
// criteria filter. The ID is expected to be normalized already.
func (c *Client) Lookup(ctx context.Context, orderID string) (Order, error) {
	params := url.Values{}
	params.Set("searchCriteria[filterGroups][0][filters][0][field]", "increment_id")
	params.Set("searchCriteria[filterGroups][0][filters][0][value]", orderID)
	params.Set("searchCriteria[filterGroups][0][filters][0][conditionType]", "eq")

	endpoint := fmt.Sprintf("%s/rest/V1/orders?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Order{}, fmt.Errorf("create magento request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("call magento orders API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Order{}, fmt.Errorf("read magento error body: %w", readErr)
		}
		if len(data) > 0 {
			return Order{}, fmt.Errorf("magento orders API error: %s", string(data))
		}
		return Order{}, fmt.Errorf("magento orders API returned status %s", resp.Status)
	}

	var parsed ordersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Order{}, fmt.Errorf("decode magento response: %w", err)
	}

	if len(parsed.Items) == 0 {
		return Order{Found: false}, nil
	}

	item := parsed.Items[0]
	return Order{
		Found:     true,
		Status:    item.Status,
		Total:     item.GrandTotal,
		CreatedAt: item.CreatedAt,
	}, nil
}

var _ OrderStatusProvider = (*Client)(nil)
