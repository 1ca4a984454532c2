package internal

import "time"

// 系統設計問題：
//   如何管理兩人對戰房間的生命週期，並安全處理等待逾時？
//
// 核心挑戰：
//   1. 狀態管理：房間在 Empty → Waiting（1 人）→ Active（2 人）之間轉換
//   2. 逾時回收：只剩一名等待者的房間，逾時後必須整個移除
//   3. 競態控制：逾時觸發與取消（第二人加入、房間刪除）可能競速
//
// 設計方案：
//   ✅ 有序玩家槽位（最多 2 個）- 先到者為 player 1
//   ✅ time.AfterFunc + 世代計數器 - 過期的逾時觸發可被識別並放棄
//   ✅ 無自有鎖 - 所有讀寫由 Coordinator 的單一事件流序列化

// Player 玩家資訊
//
// 由持有它的房間獨佔；玩家離開或房間解散時一併銷毀。
// ConnID 是傳輸層事件與房間狀態之間唯一的關聯鍵。
type Player struct {
	ConnID string `json:"conn_id"`
	Name   string `json:"name"`
	Move   Move   `json:"-"` // 本回合出拳，空值表示尚未出拳
}

// Room 對戰房間
//
// 不變量：
//   - 0 ≤ len(Players) ≤ 2
//   - 一個 ConnID 全系統最多出現在一個房間（由 Registry 索引保證）
//   - 等待計時器只在恰好一名玩家等待時掛起
//
// 計時器競態：
//   逾時觸發與取消若未同步，已作廢的計時器可能對房間動作
//  （殭屍計時器）。每次掛上或取消計時器都遞增 waitGen，
//   觸發的回呼必須比對世代一致才能動作。世代號只在本實例內
//   單調；同名重建的房間會重新計數，跨實例的識別由 Coordinator
//   以實例指標比對完成。
type Room struct {
	ID      string    `json:"room_id"`
	Players []*Player `json:"players"` // 依加入順序排列，最多 2 人

	waitTimer *time.Timer
	waitGen   uint64
}

// NewRoom 創建空房間
func NewRoom(id string) *Room {
	return &Room{ID: id}
}

// IsFull 房間是否已滿
func (r *Room) IsFull() bool {
	return len(r.Players) >= 2
}

// AddPlayer 加入玩家槽位
func (r *Room) AddPlayer(connID, name string) (*Player, error) {
	if r.IsFull() {
		return nil, ErrRoomFull
	}
	player := &Player{ConnID: connID, Name: name}
	r.Players = append(r.Players, player)
	return player, nil
}

// RemovePlayer 移除玩家槽位
func (r *Room) RemovePlayer(connID string) (*Player, bool) {
	for i, p := range r.Players {
		if p.ConnID == connID {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return p, true
		}
	}
	return nil, false
}

// PlayerByConn 依連接 ID 查找玩家
func (r *Room) PlayerByConn(connID string) (*Player, bool) {
	for _, p := range r.Players {
		if p.ConnID == connID {
			return p, true
		}
	}
	return nil, false
}

// ConnIDs 房間內所有連接 ID（廣播群組）
func (r *Room) ConnIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.ConnID)
	}
	return ids
}

// BothMoved 兩名玩家是否都已出拳
func (r *Room) BothMoved() bool {
	if len(r.Players) != 2 {
		return false
	}
	return r.Players[0].Move != "" && r.Players[1].Move != ""
}

// ClearMoves 清空所有玩家的出拳，準備下一回合
func (r *Room) ClearMoves() {
	for _, p := range r.Players {
		p.Move = ""
	}
}

// armWait 掛上等待逾時計時器
//
// 先取消既有計時器再掛新的，回呼收到掛上當下的世代號；
// 觸發時必須由 Coordinator 持鎖比對世代，不一致即放棄。
func (r *Room) armWait(d time.Duration, fire func(gen uint64)) {
	r.cancelWait()
	r.waitGen++
	gen := r.waitGen
	r.waitTimer = time.AfterFunc(d, func() { fire(gen) })
}

// cancelWait 取消等待逾時計時器
//
// 遞增世代號，讓已在途中的觸發失效。對沒有計時器的房間呼叫是無害的。
func (r *Room) cancelWait() {
	if r.waitTimer != nil {
		r.waitTimer.Stop()
		r.waitTimer = nil
	}
	r.waitGen++
}
