package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   如何把多個連接的加入/出拳/斷線事件，安全地套用到共享的房間狀態上？
//
// 核心挑戰：
//   1. 原子性：「查連接是否已有房間 + 取得/創建房間 + 加入玩家」必須是
//      一個不可分割的單位，否則兩個 join 會各自插入第一名玩家
//   2. 逾時競速：等待逾時的觸發，與第二人加入/房間刪除的取消可能同時發生
//   3. 故障隔離：畸形或亂序的事件只能影響發起的連接，不能讓行程崩潰
//
// 設計方案：
//   ✅ 單一互斥鎖 - 所有事件作為離散、不重疊的工作單位處理
//     （等價於單一邏輯事件流；讀寫都不會跨越進行中的另一步）
//   ✅ 實例指標 + 世代計數器 - 逾時回呼持鎖後重新驗證房間實例與世代，
//     過期即放棄（世代號只在單一實例內單調，同名重建由指標比對識別）
//   ✅ 同步通知 - 廣播與造成它的變更在同一工作單位內送出，順序有保證
//     （實際發送仍是發送即忘：傳輸層以緩衝 channel 非同步遞送）

// DefaultWaitTimeout 等待對手的預設逾時
const DefaultWaitTimeout = 30 * time.Second

// Notifier 廣播介面
//
// 由傳輸層實作。發送即忘：實作不得阻塞呼叫端
//（Coordinator 在持鎖狀態下呼叫）。
type Notifier interface {
	// Send 發送事件給單一連接
	Send(connID string, event OutboundEvent)
	// Broadcast 發送事件給一組連接（房間廣播群組）
	Broadcast(connIDs []string, event OutboundEvent)
}

// Config Coordinator 配置
type Config struct {
	WaitTimeout time.Duration // 等待對手的逾時，零值使用 DefaultWaitTimeout
}

// Coordinator 會話協調器
//
// 每個連接的 join/move/disconnect 請求都經由它變更 Registry/Room
// 狀態並觸發廣播。Registry 作為依賴注入，便於測試。
type Coordinator struct {
	mu          sync.Mutex
	registry    *Registry
	notifier    Notifier
	logger      *slog.Logger
	waitTimeout time.Duration
}

// NewCoordinator 創建會話協調器
func NewCoordinator(notifier Notifier, logger *slog.Logger, cfg Config) *Coordinator {
	timeout := cfg.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return &Coordinator{
		registry:    NewRegistry(),
		notifier:    notifier,
		logger:      logger,
		waitTimeout: timeout,
	}
}

// Join 處理加入房間請求
//
// 拒絕情境（以事件回報發起連接，不中斷行程）：
//   - invalid-room：房間 ID 格式非法
//   - already-in-room：連接已持有某房間的成員資格（附既有房間 ID）
//   - room-full：房間已有兩名玩家
//
// 成為第二名玩家時取消等待計時器並廣播 start-game；
// 成為第一名玩家時通知 waiting-opponent 並掛上等待計時器。
func (c *Coordinator) Join(connID, roomID, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := validateRoomID(roomID); err != nil {
		c.notifier.Send(connID, OutboundEvent{Event: EventInvalidRoom})
		return err
	}

	if existing, ok := c.registry.FindRoomContaining(connID); ok {
		c.notifier.Send(connID, OutboundEvent{
			Event: EventAlreadyInRoom,
			Data:  RoomRef{RoomID: existing.ID},
		})
		return fmt.Errorf("加入房間 %s: %w（目前在 %s）", roomID, ErrAlreadyInRoom, existing.ID)
	}

	room := c.registry.GetOrCreate(roomID)
	player, err := room.AddPlayer(connID, username)
	if err != nil {
		c.notifier.Send(connID, OutboundEvent{Event: EventRoomFull})
		return fmt.Errorf("加入房間 %s: %w", roomID, err)
	}
	c.registry.Bind(connID, roomID)

	c.logger.Info("玩家加入房間",
		"room_id", roomID,
		"conn_id", connID,
		"username", player.Name)

	if room.IsFull() {
		// 兩人到齊：取消等待計時器，廣播開始
		room.cancelWait()
		c.notifier.Broadcast(room.ConnIDs(), OutboundEvent{Event: EventStartGame})
		c.logger.Info("房間開始對戰", "room_id", roomID)
	} else {
		c.notifier.Send(connID, OutboundEvent{Event: EventWaitingOpponent})
		c.armWait(room)
	}

	return nil
}

// SubmitMove 處理出拳請求
//
// 房間不存在或連接不是成員時靜默忽略（房間可能剛逾時被移除，
// 屬預期競態）。兩人都出拳後判定勝負、廣播 round-result，
// 並清空出拳讓房間回到等待下一回合的狀態，直到有人斷線為止。
func (c *Coordinator) SubmitMove(connID, roomID string, move Move) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.registry.Get(roomID)
	if !ok {
		return nil
	}

	if !move.Valid() {
		c.notifier.Send(connID, OutboundEvent{Event: EventInvalidMove})
		return fmt.Errorf("房間 %s: %w: %q", roomID, ErrInvalidMove, move)
	}

	player, ok := room.PlayerByConn(connID)
	if !ok {
		return nil
	}

	player.Move = move

	if !room.BothMoved() {
		return nil
	}

	p1, p2 := room.Players[0], room.Players[1]
	verdict, err := Resolve(p1.Move, p2.Move, p1.Name, p2.Name)
	if err != nil {
		// 出拳已在邊界驗證，理論上到不了這裡
		return fmt.Errorf("房間 %s 判定失敗: %w", roomID, err)
	}

	c.notifier.Broadcast(room.ConnIDs(), OutboundEvent{
		Event: EventRoundResult,
		Data: RoundResult{
			Result:    verdict.Result,
			Move1:     p1.Move,
			Move2:     p2.Move,
			Username1: p1.Name,
			Username2: p2.Name,
			Message:   verdict.Message,
		},
	})

	c.logger.Info("回合結束",
		"room_id", roomID,
		"result", verdict.Result,
		"move1", p1.Move,
		"move2", p2.Move)

	room.ClearMoves()
	return nil
}

// Disconnect 處理連接斷線
//
// 連接不在任何房間時是 no-op。剩一名玩家時通知對方並讓房間回到
// Waiting 狀態：此時重新掛上等待計時器，讓斷線後的房間適用與
// 新房間相同的逾時回收（原始設計在此不再掛計時器，房間會永遠
// 等待，這裡刻意修正）。剩餘玩家未送出的出拳一併清除。
// 無人時直接刪除房間（計時器隨之取消）。
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.registry.FindRoomContaining(connID)
	if !ok {
		return
	}

	player, _ := room.RemovePlayer(connID)
	c.registry.Unbind(connID)

	c.logger.Info("玩家離開房間",
		"room_id", room.ID,
		"conn_id", connID,
		"username", player.Name)

	switch len(room.Players) {
	case 1:
		remaining := room.Players[0]
		c.notifier.Send(remaining.ConnID, OutboundEvent{
			Event: EventOpponentDisconnected,
			Data:  RoomRef{RoomID: room.ID},
		})
		room.ClearMoves()
		c.armWait(room)
	case 0:
		c.registry.Remove(room.ID)
		c.logger.Info("房間已清空移除", "room_id", room.ID)
	}
}

// armWait 為單人房間掛上等待逾時計時器（需持鎖呼叫）
//
// 回呼捕捉房間實例的指標而非房間 ID：世代號只在單一 Room 實例內
// 單調遞增，同名重建的新房間會從頭計數，單靠世代比對無法識別
// 跨實例的過期觸發。
func (c *Coordinator) armWait(room *Room) {
	room.armWait(c.waitTimeout, func(gen uint64) {
		c.onWaitTimeout(room, gen)
	})
}

// onWaitTimeout 等待逾時觸發
//
// 觸發與取消可能競速：持鎖後重新檢查同名房間是否仍是掛上計時器
// 的同一個實例（房間可能已被刪除並以同名重建）、世代是否一致、
// 人數是否仍不足，任一不符即放棄（計時器已被第二人加入或房間
// 刪除作廢）。成立時先廣播 opponent-timeout，再逐一通知 timeout，
// 最後刪除房間。
func (c *Coordinator) onWaitTimeout(room *Room, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.registry.Get(room.ID)
	if !ok || current != room || room.waitGen != gen || room.IsFull() {
		return
	}

	conns := room.ConnIDs()
	c.notifier.Broadcast(conns, OutboundEvent{Event: EventOpponentTimeout})
	for _, id := range conns {
		c.notifier.Send(id, OutboundEvent{Event: EventTimeout})
	}
	c.registry.Remove(room.ID)

	c.logger.Info("等待對手逾時，房間已移除", "room_id", room.ID)
}

// Stats 統計資訊
func (c *Coordinator) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting, active, totalPlayers := 0, 0, 0
	for _, room := range c.registry.Rooms() {
		totalPlayers += len(room.Players)
		if room.IsFull() {
			active++
		} else {
			waiting++
		}
	}

	return map[string]any{
		"total_rooms":   c.registry.Len(),
		"total_players": totalPlayers,
		"waiting_rooms": waiting,
		"active_rooms":  active,
	}
}

// Stop 停止協調器
//
// 刪除所有房間並取消所有等待計時器。
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, roomID := range c.registry.RoomIDs() {
		c.registry.Remove(roomID)
	}

	c.logger.Info("會話協調器已停止")
}
