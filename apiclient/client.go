package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionHeader 标识发起修改的客户端会话，变更推送中据此过滤自身事件
const SessionHeader = "X-Mapedit-Session"

// Record 服务端要素记录，WKT 为经纬度
type Record struct {
	ID   int64  `json:"id,omitempty"`
	WKT  string `json:"wkt"`
	Name string `json:"name"`
}

// NetworkError 请求未完成或返回非 2xx
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Cause() error { return e.Err }

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout 0 表示不超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client 要素服务的 REST 客户端
type Client struct {
	base       string
	session    string
	httpClient *http.Client
}

func New(base string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		session: uuid.NewString(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() string {
	return c.session
}

// GetAll GET /features
func (c *Client) GetAll(ctx context.Context) ([]Record, error) {
	var out []Record
	if err := c.do(ctx, "getAll", http.MethodGet, "/features", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save POST /features，服务端未回显 id 时返回的 ID 为 0
func (c *Client) Save(ctx context.Context, wkt, name string) (Record, error) {
	out := Record{WKT: wkt, Name: name}
	err := c.do(ctx, "save", http.MethodPost, "/features", Record{WKT: wkt, Name: name}, &out)
	return out, err
}

// Update PUT /features
func (c *Client) Update(ctx context.Context, rec Record) (Record, error) {
	out := rec
	err := c.do(ctx, "update", http.MethodPut, "/features", rec, &out)
	return out, err
}

// Delete DELETE /features/{id}
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, "delete", http.MethodDelete, "/features/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: encode body", op)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.session)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(data, resp.Status))}
	}
	if out == nil {
		return nil
	}
	if err := decodeLenient(data, out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

// decodeLenient 兼容 {"responseData": ...}、裸 JSON 和空响应体
func decodeLenient(data []byte, out interface{}) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		if inner, ok := env["responseData"]; ok {
			data = bytes.TrimSpace(inner)
			if len(data) == 0 || bytes.Equal(data, []byte("null")) {
				return nil
			}
			// 例如 DELETE 返回 "ok"
			if data[0] != '{' && data[0] != '[' {
				return nil
			}
		}
	}
	return json.Unmarshal(data, out)
}

func errorMessage(data []byte, status string) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return status
}
