package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skosovsky/toolspec"
)

// maxResponseBytes caps how much of an upstream response a tool reads.
const maxResponseBytes = 4 << 20

// Handler returns a tool handler that performs op against baseURL. Arguments are the
// accepted input value: properties located in the path, query or headers are sent there,
// the body property becomes the JSON request body. A nil client means http.DefaultClient.
//
// 4xx responses are client errors (the model can fix its arguments); other failures are
// returned as plain errors and surface as system errors.
func Handler(op Operation, baseURL string, client *http.Client) func(ctx context.Context, argsJSON []byte) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(baseURL, "/")
	return func(ctx context.Context, argsJSON []byte) ([]byte, error) {
		var args map[string]any
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		req, err := buildRequest(ctx, op, base, args)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op.Method, op.Path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &toolspec.ClientError{
				Reason:    fmt.Sprintf("%s %s returned %d: %s", op.Method, op.Path, resp.StatusCode, strings.TrimSpace(string(body))),
				Retryable: resp.StatusCode == http.StatusTooManyRequests,
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s %s returned %d", op.Method, op.Path, resp.StatusCode)
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			return []byte("null"), nil
		}
		if !json.Valid(body) {
			return json.Marshal(string(body))
		}
		return body, nil
	}
}

func buildRequest(ctx context.Context, op Operation, base string, args map[string]any) (*http.Request, error) {
	path := op.Path
	query := url.Values{}
	header := http.Header{}
	for name, loc := range op.In {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		switch loc {
		case "path":
			path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(scalarString(v)))
		case "query":
			if list, isList := v.([]any); isList {
				for _, item := range list {
					query.Add(name, scalarString(item))
				}
				continue
			}
			query.Set(name, scalarString(v))
		case "header":
			header.Set(name, scalarString(v))
		case "cookie":
			header.Add("Cookie", (&http.Cookie{Name: name, Value: scalarString(v)}).String())
		}
	}

	var body io.Reader
	if v, ok := args[BodyProperty]; ok {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}

	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, op.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// scalarString renders a decoded JSON scalar the way it appears in a URL.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Register builds a tool for every operation and registers it with reg. Tools are named,
// described and validated by their manifests; opts apply to every tool.
func Register(reg *toolspec.Registry, ops []Operation, baseURL string, client *http.Client, opts ...toolspec.ToolOption) error {
	for _, op := range ops {
		if err := reg.RegisterManifest(op.Manifest, Handler(op, baseURL, client), opts...); err != nil {
			return fmt.Errorf("%s %s: %w", op.Method, op.Path, err)
		}
	}
	return nil
}
