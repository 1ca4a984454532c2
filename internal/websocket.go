package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把每個客戶端的持久雙向事件通道，接到單一事件流的協調器上？
//
// 核心挑戰：
//   1. 連接身份：每條連接需要一個存活期間唯一的不透明識別碼
//   2. 斷線偵測：網路異常、瀏覽器崩潰時伺服器必須察覺並清理房間
//   3. 非阻塞廣播：Coordinator 持鎖呼叫通知，發送不得阻塞
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信（低延遲、服務器推送）
//   ✅ Hub 模式 - 集中管理所有連接，connID → Connection 一層映射
//   ✅ uuid 連接識別碼 - 升級當下指派，斷線即作廢
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel + 滿了丟棄 - 慢客戶端不拖累整個房間

// Hub WebSocket 連接中心
//
// 實作 Notifier：Coordinator 以連接 ID 為地址發送事件，
// Hub 負責找到對應連接並非同步遞送。房間成員關係由 Coordinator
// 持有，Hub 只認得連接本身，兩層職責分離。
type Hub struct {
	coordinator   *Coordinator
	logger        *slog.Logger
	upgrader      websocket.Upgrader
	conns         map[string]*Connection // connID -> Connection
	mu            sync.RWMutex
	allowedOrigin string
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewHub 創建 WebSocket Hub
//
// allowedOrigin 為允許的跨來源值；"*" 表示不限制。
func NewHub(allowedOrigin string, logger *slog.Logger) *Hub {
	hub := &Hub{
		logger:        logger,
		conns:         make(map[string]*Connection),
		allowedOrigin: allowedOrigin,
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if hub.allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == hub.allowedOrigin
		},
	}
	return hub
}

// SetCoordinator 綁定會話協調器
//
// Hub 與 Coordinator 互相引用（入站事件流向 Coordinator，
// 通知流回 Hub），其中一側需在建構後綁定。
func (hub *Hub) SetCoordinator(c *Coordinator) {
	hub.coordinator = c
}

// ServeWS 處理 WebSocket 連接
//
// 升級成功即指派不透明的連接識別碼，連接斷開時作廢。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  hub,
	}

	hub.register(connection)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("用戶已連接",
		"conn_id", connection.ID,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn.ID] = conn
}

// unregister 取消註冊連接
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.conns[conn.ID]; exists && actual == conn {
		delete(hub.conns, conn.ID)
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
	}
}

// Send 發送事件給單一連接（實作 Notifier）
//
// 發送即忘：連接不存在（可能剛斷線）或緩衝區滿時丟棄。
func (hub *Hub) Send(connID string, event OutboundEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Event)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	hub.deliver(connID, event.Event, message)
}

// Broadcast 發送事件給一組連接（實作 Notifier）
func (hub *Hub) Broadcast(connIDs []string, event OutboundEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "error", err, "event", event.Event)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, connID := range connIDs {
		hub.deliver(connID, event.Event, message)
	}
}

// deliver 遞送訊息到連接的發送緩衝（需持讀鎖）
func (hub *Hub) deliver(connID, eventName string, message []byte) {
	conn, exists := hub.conns[connID]
	if !exists {
		return
	}

	select {
	case conn.Send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿，丟棄事件",
			"conn_id", connID,
			"event", eventName)
	}
}

// ConnectionCount 獲取連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// Stop 停止 WebSocket Hub
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.conns {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.conns = make(map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端事件
//
// 心跳機制（讀取端）：60 秒內沒有任何消息（含 Pong）即視為死連接。
// 配合 writePump 的 54 秒 Ping（留 6 秒余量，避開代理常見的 60 秒
// 閾值）。連接結束時觸發隱式的 disconnect 事件，由 Coordinator
// 清理房間狀態。
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Hub.coordinator.Disconnect(c.ID)
		c.Conn.Close()
		c.Hub.logger.Info("用戶已斷線", "conn_id", c.ID)
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		// 讀取期限本身就是活性記錄：Pong 一到就往後推
		if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

// writePump 寫入事件到客戶端
//
// 心跳機制（發送端）：每 54 秒發送 Ping，客戶端自動回覆 Pong，
// readPump 收到後重置超時。事件經由緩衝 channel 非同步發送，
// 不阻塞 Coordinator 的事件流。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的事件
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					c.Hub.logger.Error("發送事件失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 處理入站事件
//
// 邊界驗證：信封與負載解析失敗、或事件類型未知時，記錄後丟棄，
// 絕不讓畸形事件讓行程崩潰。被 Coordinator 拒絕的操作已經以
// 事件回報給發起連接，這裡只留日誌。
func (c *Connection) handleMessage(message []byte) {
	var event InboundEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.Hub.logger.Warn("解析事件信封失敗，丟棄",
			"error", err,
			"conn_id", c.ID)
		return
	}

	switch event.Type {
	case EventJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			c.Hub.logger.Warn("解析 join-room 負載失敗，丟棄",
				"error", err,
				"conn_id", c.ID)
			return
		}
		if err := c.Hub.coordinator.Join(c.ID, data.RoomID, data.Username); err != nil {
			c.Hub.logger.Warn("加入房間被拒絕",
				"error", err,
				"conn_id", c.ID,
				"room_id", data.RoomID)
		}

	case EventMakeMove:
		var data MakeMoveData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			c.Hub.logger.Warn("解析 make-move 負載失敗，丟棄",
				"error", err,
				"conn_id", c.ID)
			return
		}
		if err := c.Hub.coordinator.SubmitMove(c.ID, data.RoomID, Move(data.Move)); err != nil {
			c.Hub.logger.Warn("出拳被拒絕",
				"error", err,
				"conn_id", c.ID,
				"room_id", data.RoomID)
		}

	default:
		c.Hub.logger.Debug("收到未知事件類型，丟棄",
			"type", event.Type,
			"conn_id", c.ID)
	}
}
