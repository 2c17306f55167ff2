package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"checkin-pipeline/upload"
)

// Client queries the platform's quota/entitlement service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) CheckAllowance(ctx context.Context, userID string) (upload.Allowance, error) {
	endpoint := fmt.Sprintf("%s/allowance/%s", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return upload.Allowance{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return upload.Allowance{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upload.Allowance{}, fmt.Errorf("quota service returned %d", resp.StatusCode)
	}

	var allowance upload.Allowance
	if err := json.NewDecoder(resp.Body).Decode(&allowance); err != nil {
		return upload.Allowance{}, err
	}
	return allowance, nil
}
