package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const defaultAPIVersion = "2024-10"

func APIVersion() string {
	if v := strings.TrimSpace(os.Getenv("SHOPIFY_API_VERSION")); v != "" {
		return v
	}
	return defaultAPIVersion
}

// Client talks to one shop's Admin GraphQL API.
type Client struct {
	Domain      string
	AccessToken string
	APIVersion  string

	// BaseURL overrides the admin endpoint; tests point it at a local server.
	BaseURL string

	HTTPClient *http.Client
}

func NewClient(domain, accessToken string) *Client {
	return &Client{
		Domain:      domain,
		AccessToken: accessToken,
		APIVersion:  APIVersion(),
	}
}

func (c *Client) endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.Domain, c.APIVersion)
}

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// postGraphQL issues one query and fails on transport, HTTP and GraphQL-level
// errors alike. No retries: a failed call fails this unit of work for the run.
func postGraphQL[T any](ctx context.Context, c *Client, query string, variables map[string]any) (*graphQLResponse[T], error) {
	body := map[string]any{
		"query":     query,
		"variables": variables,
	}
	b, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	res, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("shopify graphql: http %d: %s", res.StatusCode, string(raw))
	}

	var out graphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("shopify graphql: decode response: %w", err)
	}

	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("shopify graphql: %s", out.Errors[0].Message)
	}

	return &out, nil
}
