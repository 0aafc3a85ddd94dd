package views

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// PingInterval 心跳间隔
var PingInterval = 30 * time.Second

// EventSession 一个变更推送连接
type EventSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *EventSession) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *EventSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// FeatureEvents 升级为 WebSocket 并推送要素变更
func (fc *FeatureController) FeatureEvents(c *gin.Context) {
	// 握手前订阅，握手完成后发布的事件不会丢失
	events, unsubscribe := fc.hub.Subscribe()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		logger.L().Warnf("Failed to upgrade to websocket: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	session := &EventSession{conn: conn, ctx: ctx, cancel: cancel}
	defer func() {
		unsubscribe()
		session.cancel()
		session.conn.Close()
		logger.L().Debug("event session closed")
	}()

	// 读循环只用于感知断开
	go func() {
		defer session.cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.L().Warnf("WebSocket error: %v", err)
				}
				return
			}
		}
	}()

	// 设置心跳
	pingTicker := time.NewTicker(PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-session.ctx.Done():
			return
		case <-pingTicker.C:
			if err := session.ping(); err != nil {
				logger.L().Warnf("Ping failed: %v", err)
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := session.write(ev); err != nil {
				logger.L().Warnf("Failed to send event: %v", err)
				return
			}
		}
	}
}
