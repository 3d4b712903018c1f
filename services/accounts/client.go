package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
)

const (
	serviceName    = "account directory"
	defaultTimeout = 3 * time.Second
)

// Client reads users from the accounts service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ account.Directory = (*Client)(nil)

func NewClient(conf core.AccountsConfig) *Client {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(conf.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetUserByID(ctx context.Context, id string) (account.UserInfo, error) {
	return c.getUser(ctx, "/users/"+url.PathEscape(id))
}

func (c *Client) GetUserByCode(ctx context.Context, code string) (account.UserInfo, error) {
	return c.getUser(ctx, "/users/by-code/"+url.PathEscape(code))
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (account.UserInfo, error) {
	return c.getUser(ctx, "/users/by-email/"+url.PathEscape(email))
}

func (c *Client) getUser(ctx context.Context, path string) (account.UserInfo, error) {
	var info account.UserInfo

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return info, errors.Wrap(err, "building directory request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return info, core.NewUpstreamUnavailableError(serviceName, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, res.Body)
		return info, account.ErrUserNotFound
	case res.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return info, core.NewUpstreamUnavailableError(
			serviceName,
			fmt.Errorf("GET %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body))),
		)
	}

	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return info, core.NewUpstreamUnavailableError(serviceName, errors.Wrap(err, "decoding user"))
	}
	return info, nil
}
