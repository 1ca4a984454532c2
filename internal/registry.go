package internal

// Registry 行程範圍的房間註冊表
//
// roomID → Room 的對應，外加 connID → roomID 的反向索引，
// 用來以 O(1) 落實「一個連接最多在一個房間」的全域不變量。
//
// 併發模型：Registry 不持有自己的鎖。所有讀寫都來自 Coordinator
// 的單一事件流（持 Coordinator 鎖），複合操作（查索引 + 取房間 +
// 加玩家）因此天然原子，不會出現兩個 join 各自看到空房間的
// lost-update。生命週期即行程生命週期，重啟後所有房間消失。
type Registry struct {
	rooms    map[string]*Room
	connRoom map[string]string // connID -> roomID
}

// NewRegistry 創建空註冊表
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		connRoom: make(map[string]string),
	}
}

// GetOrCreate 取得既有房間，不存在則創建空房間
func (g *Registry) GetOrCreate(roomID string) *Room {
	if room, exists := g.rooms[roomID]; exists {
		return room
	}
	room := NewRoom(roomID)
	g.rooms[roomID] = room
	return room
}

// Get 取得房間
func (g *Registry) Get(roomID string) (*Room, bool) {
	room, exists := g.rooms[roomID]
	return room, exists
}

// FindRoomContaining 查找包含指定連接的房間
func (g *Registry) FindRoomContaining(connID string) (*Room, bool) {
	roomID, exists := g.connRoom[connID]
	if !exists {
		return nil, false
	}
	room, exists := g.rooms[roomID]
	return room, exists
}

// Bind 記錄連接所在的房間
func (g *Registry) Bind(connID, roomID string) {
	g.connRoom[connID] = roomID
}

// Unbind 清除連接的房間記錄
func (g *Registry) Unbind(connID string) {
	delete(g.connRoom, connID)
}

// Remove 刪除房間
//
// 冪等：房間不存在時是無害的 no-op（房間可能已被逾時回收）。
// 取消等待計時器與刪除在同一步完成，避免懸空的計時器對
// 同名重建的房間動作。
func (g *Registry) Remove(roomID string) {
	room, exists := g.rooms[roomID]
	if !exists {
		return
	}

	room.cancelWait()
	for _, p := range room.Players {
		delete(g.connRoom, p.ConnID)
	}
	delete(g.rooms, roomID)
}

// Len 房間數量
func (g *Registry) Len() int {
	return len(g.rooms)
}

// Rooms 所有房間
func (g *Registry) Rooms() []*Room {
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// RoomIDs 所有房間 ID
func (g *Registry) RoomIDs() []string {
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	return ids
}
