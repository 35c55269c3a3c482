package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HttpClient is a thin JSON-RPC client shared by every network adapter that
// talks to a plain JSON-RPC node rather than an EVM client library.
type HttpClient struct {
	*http.Client
	url string
}

// NewHttpClient builds a client pointed at a single RPC endpoint.
func NewHttpClient(url string) *HttpClient {
	return &HttpClient{
		Client: &http.Client{Timeout: 60 * time.Second},
		url:    url,
	}
}

func (client *HttpClient) GetURL() string {
	return client.url
}

// RPCCall issues a JSON-RPC request and decodes the response into
// rpcResponse, which is expected to embed entities.RPCBaseRes.
func (client *HttpClient) RPCCall(ctx context.Context, method string, params interface{}, rpcResponse interface{}) error {
	payload := map[string]interface{}{
		"method": method,
		"params": params,
		"id":     0,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("utils: marshal rpc payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("utils: build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("utils: call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("utils: read rpc response: %w", err)
	}
	if err := json.Unmarshal(body, rpcResponse); err != nil {
		return fmt.Errorf("utils: decode rpc response: %w", err)
	}
	return nil
}
