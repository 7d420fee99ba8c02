// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"resty.dev/v3"

	apimodel "github.com/resuralph/ralphstack/internal/api/model"
)

// Client queries a running ralphstack server.
type Client struct {
	endpoint string
	resty    *resty.Client
}

func NewClient(endpoint string, net *http.Client) *Client {
	client := resty.New()
	if net != nil {
		client = resty.NewWithClient(net)
	}
	client.SetHeader("Client-ID", "cli")

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		resty:    client,
	}
}

func (c *Client) Close() error {
	return c.resty.Close()
}

func (c *Client) Stats() (*apimodel.Stats, error) {
	var stats apimodel.Stats
	if err := c.get(StatsRoute, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Status lists recent commands, filtered by stack when it is not empty.
func (c *Client) Status(stack string, n int) (*apimodel.ListCommandStatusResponse, error) {
	params := url.Values{}
	if stack != "" {
		params.Set("stack", stack)
	}
	if n > 0 {
		params.Set("max_results", strconv.Itoa(n))
	}

	var result apimodel.ListCommandStatusResponse
	if err := c.get(CommandsRoute, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CommandStatus(commandID string) (*apimodel.ListCommandStatusResponse, error) {
	var result apimodel.ListCommandStatusResponse
	if err := c.get(strings.Replace(CommandStatusRoute, ":id", url.PathEscape(commandID), 1), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Inventory(stack string) (*apimodel.ListResourcesResponse, error) {
	var result apimodel.ListResourcesResponse
	if err := c.get(stackRoute(StackResourcesRoute, stack), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Outputs(stack string) (*apimodel.ListOutputsResponse, error) {
	var result apimodel.ListOutputsResponse
	if err := c.get(stackRoute(StackOutputsRoute, stack), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Drift(stack string) (*apimodel.DriftResponse, error) {
	var result apimodel.DriftResponse
	if err := c.get(stackRoute(StackDriftRoute, stack), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitOnAvailable polls the health endpoint until the server answers or timeout passes.
func (c *Client) WaitOnAvailable(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := c.resty.R().Get(c.endpoint + HealthRoute)
		if err == nil && resp.StatusCode() == http.StatusOK {
			return true
		}

		time.Sleep(250 * time.Millisecond)
	}
	return false
}

func stackRoute(route, stack string) string {
	return strings.Replace(route, ":stack", url.PathEscape(stack), 1)
}

func (c *Client) get(route string, params url.Values, result any) error {
	req := c.resty.R()
	for key := range params {
		req.SetQueryParam(key, params.Get(key))
	}

	resp, err := req.Get(c.endpoint + route)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return syscall.ECONNREFUSED
		}
		return err
	}

	//nolint:errcheck
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return decodeError(resp.StatusCode(), body)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeError turns an error response back into the typed error the server mapped.
func decodeError(status int, body []byte) error {
	var envelope apimodel.ErrorResponse[json.RawMessage]
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ErrorType == "" {
		return fmt.Errorf("unexpected status code: %d", status)
	}

	switch envelope.ErrorType {
	case apimodel.StackNotFound:
		return decodeErrorData[apimodel.StackNotFoundError](envelope)
	case apimodel.CommandNotFound:
		return decodeErrorData[apimodel.CommandNotFoundError](envelope)
	case apimodel.ReferencedResourcesNotFound:
		return decodeErrorData[apimodel.ReferencedResourcesNotFoundError](envelope)
	case apimodel.StateVersionTooNew:
		return decodeErrorData[apimodel.StateVersionTooNewError](envelope)
	default:
		return envelope
	}
}

func decodeErrorData[T error](envelope apimodel.ErrorResponse[json.RawMessage]) error {
	var data T
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return fmt.Errorf("failed to decode %s error: %w", envelope.ErrorType, err)
	}
	return data
}
