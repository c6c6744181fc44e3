package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// APIError is a non-2xx answer from the delivery API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Deliveries talks to /v1/deliveries with a bearer credential.
type Deliveries struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

func NewDeliveries(baseURL, credential string, timeout time.Duration) *Deliveries {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"})
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deliveries{
		base:    strings.TrimRight(baseURL, "/"),
		http:    oauth2.NewClient(context.Background(), src),
		timeout: timeout,
	}
}

func (d *Deliveries) List(ctx context.Context, f delivery.ListFilter) ([]model.DeliveryRequest, error) {
	q := url.Values{}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	path := "/v1/deliveries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items []model.DeliveryRequest `json:"items"`
	}
	if err := d.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (d *Deliveries) Get(ctx context.Context, id string) (model.DeliveryRequest, error) {
	var out model.DeliveryRequest
	err := d.do(ctx, http.MethodGet, "/v1/deliveries/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (d *Deliveries) Create(ctx context.Context, in delivery.NewRequest) (model.DeliveryRequest, error) {
	var out model.DeliveryRequest
	err := d.do(ctx, http.MethodPost, "/v1/deliveries", in, &out)
	return out, err
}

func (d *Deliveries) Accept(ctx context.Context, id string) (model.DeliveryRequest, error) {
	var out model.DeliveryRequest
	err := d.do(ctx, http.MethodPost, "/v1/deliveries/"+url.PathEscape(id)+"/accept", nil, &out)
	return out, err
}

func (d *Deliveries) UpdateStatus(ctx context.Context, id string, status model.Status) (model.DeliveryRequest, error) {
	var out model.DeliveryRequest
	err := d.do(ctx, http.MethodPatch, "/v1/deliveries/"+url.PathEscape(id)+"/status", map[string]string{"status": string(status)}, &out)
	return out, err
}

func (d *Deliveries) Cancel(ctx context.Context, id string) (model.DeliveryRequest, error) {
	var out model.DeliveryRequest
	err := d.do(ctx, http.MethodPost, "/v1/deliveries/"+url.PathEscape(id)+"/cancel", nil, &out)
	return out, err
}

func (d *Deliveries) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: res.StatusCode, Message: e.Error}
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
