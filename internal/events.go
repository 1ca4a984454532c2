package internal

import (
	"encoding/json"
	"fmt"
)

// 事件協議
//
// 入站事件使用顯式的標記信封（type + data），在邊界解析並驗證後
// 才會進入 Coordinator，取代原始設計中鬆散的動態負載。
// 出站事件沿用 event + data 信封。
//
// 負載欄位維持 camelCase（roomId、username、move1 ...），
// 與既有客戶端的線上格式相容。

// 入站事件類型（客戶端 → 伺服器）
const (
	EventJoinRoom = "join-room"
	EventMakeMove = "make-move"
)

// 出站事件類型（伺服器 → 客戶端/房間）
const (
	EventAlreadyInRoom        = "already-in-room"
	EventRoomFull             = "room-full"
	EventInvalidMove          = "invalid-move"
	EventInvalidRoom          = "invalid-room"
	EventWaitingOpponent      = "waiting-opponent"
	EventStartGame            = "start-game"
	EventOpponentTimeout      = "opponent-timeout"
	EventTimeout              = "timeout"
	EventOpponentDisconnected = "opponent-disconnected"
	EventRoundResult          = "round-result"
)

// InboundEvent 入站事件信封
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRoomData join-room 事件負載
type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// MakeMoveData make-move 事件負載
type MakeMoveData struct {
	RoomID string `json:"roomId"`
	Move   string `json:"move"`
}

// OutboundEvent 出站事件信封
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RoomRef 引用房間的出站負載（already-in-room、opponent-disconnected）
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// RoundResult round-result 事件負載
type RoundResult struct {
	Result    string            `json:"result"`
	Move1     Move              `json:"move1"`
	Move2     Move              `json:"move2"`
	Username1 string            `json:"username1"`
	Username2 string            `json:"username2"`
	Message   map[string]string `json:"message"`
}

// maxRoomIDLength 房間 ID 長度上限
//
// 房間 ID 由呼叫端自定，僅限制非空且不超過上限，不另外限制字元集
// （既有客戶端已送出自由格式的 ID）。
const maxRoomIDLength = 64

// validateRoomID 驗證房間 ID 格式
func validateRoomID(roomID string) error {
	if roomID == "" || len(roomID) > maxRoomIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return nil
}
