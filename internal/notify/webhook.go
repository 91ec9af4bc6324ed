package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Webhook modes.
const (
	WebhookJSON  = "json"
	WebhookQuery = "query"
)

// Webhook posts events to a fixed URL. In query mode the event is flattened into
// URL query parameters on a GET instead.
type Webhook struct {
	url    string
	mode   string
	client *http.Client
}

func NewWebhook(rawURL, mode string) *Webhook {
	if mode != WebhookQuery {
		mode = WebhookJSON
	}
	return &Webhook{url: rawURL, mode: mode, client: &http.Client{Timeout: 15 * time.Second}}
}

func (w *Webhook) Name() string   { return "webhook" }
func (w *Webhook) Target() string { return w.url }

func (w *Webhook) Notify(ctx context.Context, e Event) error {
	if w.url == "" {
		return ErrSkip
	}

	var (
		req *http.Request
		err error
	)
	switch w.mode {
	case WebhookQuery:
		u, perr := url.Parse(w.url)
		if perr != nil {
			return fmt.Errorf("parse webhook url: %w", perr)
		}
		params, ferr := Flatten(e)
		if ferr != nil {
			return ferr
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	default:
		body, merr := json.Marshal(e)
		if merr != nil {
			return fmt.Errorf("marshal event: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Flatten turns an event into underscore-joined keys, e.g. "car_brand" or
// "quote_monthly_payment". Empty values are dropped.
func Flatten(e Event) (map[string]string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	out := make(map[string]string)
	flattenInto(out, "", tree)
	return out, nil
}

func flattenInto(out map[string]string, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "_" + k
			}
			flattenInto(out, key, val[k])
		}
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		if len(parts) > 0 {
			out[prefix] = strings.Join(parts, ",")
		}
	case float64:
		out[prefix] = strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if val != "" {
			out[prefix] = val
		}
	case bool:
		out[prefix] = strconv.FormatBool(val)
	case nil:
	default:
		out[prefix] = fmt.Sprint(val)
	}
}
