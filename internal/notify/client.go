// Package notify posts transfer records to the records service. The
// call is best-effort: the ledger commits before it is made and a
// failure here is only ever logged.
package notify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client talks to the records service. The embedded timeout keeps a
// slow records endpoint from stalling transfer responses.
type Client struct {
	baseURL  string
	password string
	http     *http.Client
}

func NewClient(baseURL, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

// Submit stores record and returns the generated receipt id.
func (c *Client) Submit(ctx context.Context, record string) (string, error) {
	form := url.Values{
		"record":   {record},
		"password": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit_record", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "building records request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "posting record")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", errors.Wrap(err, "reading records response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("records service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// RecordURL is the public URL a receipt id can be read back from.
func (c *Client) RecordURL(id string) string {
	return c.baseURL + "/get_record/" + id
}
