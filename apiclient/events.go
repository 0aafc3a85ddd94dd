package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// 变更事件类型
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Event 变更推送消息
type Event struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Origin string `json:"origin,omitempty"`
}

// EditRecord 要素编辑历史
type EditRecord struct {
	ID         int64           `json:"id"`
	FeatureID  int64           `json:"featureId"`
	Type       string          `json:"type"`
	Date       string          `json:"date"`
	OldGeojson json.RawMessage `json:"oldGeojson,omitempty"`
	NewGeojson json.RawMessage `json:"newGeojson,omitempty"`
}

// Records GET /features/records?id=
func (c *Client) Records(ctx context.Context, id int64) ([]EditRecord, error) {
	var out []EditRecord
	path := "/features/records?id=" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, "records", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events 订阅 /features/events，过滤掉本会话自己引起的事件。ctx 结束时通道关闭。
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	u, err := url.Parse(c.base + "/features/events")
	if err != nil {
		return nil, errors.Wrap(err, "events url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set(SessionHeader, c.session)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		ne := &NetworkError{Op: "events", Err: err}
		if resp != nil {
			ne.StatusCode = resp.StatusCode
		}
		return nil, ne
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					logger.L().Warnf("change feed closed: %v", err)
				}
				return
			}
			if ev.Origin == c.session {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
