package internal_test

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-matchmaking/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

// fakeNotifier 記錄每個連接收到的事件，依收到順序排列
type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]internal.OutboundEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]internal.OutboundEvent)}
}

func (f *fakeNotifier) Send(connID string, event internal.OutboundEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[connID] = append(f.sent[connID], event)
}

func (f *fakeNotifier) Broadcast(connIDs []string, event internal.OutboundEvent) {
	for _, connID := range connIDs {
		f.Send(connID, event)
	}
}

// events 連接收到的事件名稱，依序
func (f *fakeNotifier) events(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.sent[connID]))
	for _, event := range f.sent[connID] {
		names = append(names, event.Event)
	}
	return names
}

// last 連接最後收到的事件
func (f *fakeNotifier) last(connID string) (internal.OutboundEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := f.sent[connID]
	if len(events) == 0 {
		return internal.OutboundEvent{}, false
	}
	return events[len(events)-1], true
}

// count 連接收到指定事件的次數
func (f *fakeNotifier) count(connID, eventName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, event := range f.sent[connID] {
		if event.Event == eventName {
			n++
		}
	}
	return n
}

// totalCount 所有連接收到指定事件的總次數
func (f *fakeNotifier) totalCount(eventName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, events := range f.sent {
		for _, event := range events {
			if event.Event == eventName {
				n++
			}
		}
	}
	return n
}

// 創建測試用的協調器
func newTestCoordinator(waitTimeout time.Duration) (*internal.Coordinator, *fakeNotifier) {
	notifier := newFakeNotifier()
	coordinator := internal.NewCoordinator(notifier, testLogger(), internal.Config{
		WaitTimeout: waitTimeout,
	})
	return coordinator, notifier
}

// TestCoordinator_JoinAndStart 測試配對流程：
// 第一人收到 waiting-opponent，第二人到齊後兩人都收到 start-game
func TestCoordinator_JoinAndStart(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	assert.Equal(t, []string{internal.EventWaitingOpponent}, notifier.events("conn_alice"))

	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))
	assert.Equal(t, []string{internal.EventWaitingOpponent, internal.EventStartGame}, notifier.events("conn_alice"))
	assert.Equal(t, []string{internal.EventStartGame}, notifier.events("conn_bob"))

	stats := coordinator.Stats()
	assert.Equal(t, 1, stats["total_rooms"])
	assert.Equal(t, 2, stats["total_players"])
	assert.Equal(t, 1, stats["active_rooms"])
}

// TestCoordinator_RoundResolution 測試回合判定與重置：
// 兩人都出拳後廣播 round-result，出拳清空後可無限重複回合
func TestCoordinator_RoundResolution(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	// 第一回合：alice 的石頭勝 bob 的剪刀
	require.NoError(t, coordinator.SubmitMove("conn_alice", "R1", internal.MoveRock))
	assert.Equal(t, 0, notifier.totalCount(internal.EventRoundResult), "只有一人出拳不應判定")

	require.NoError(t, coordinator.SubmitMove("conn_bob", "R1", internal.MoveScissors))
	assert.Equal(t, 1, notifier.count("conn_alice", internal.EventRoundResult))
	assert.Equal(t, 1, notifier.count("conn_bob", internal.EventRoundResult))

	event, ok := notifier.last("conn_bob")
	require.True(t, ok)
	result, ok := event.Data.(internal.RoundResult)
	require.True(t, ok)
	assert.Equal(t, "alice wins", result.Result)
	assert.Equal(t, internal.MoveRock, result.Move1)
	assert.Equal(t, internal.MoveScissors, result.Move2)
	assert.Equal(t, "alice", result.Username1)
	assert.Equal(t, "bob", result.Username2)
	assert.Equal(t, "You win!", result.Message["alice"])
	assert.Equal(t, "You lose!", result.Message["bob"])

	// 第二回合：出拳已重置，平手也能判定
	require.NoError(t, coordinator.SubmitMove("conn_alice", "R1", internal.MovePaper))
	require.NoError(t, coordinator.SubmitMove("conn_bob", "R1", internal.MovePaper))
	assert.Equal(t, 2, notifier.count("conn_alice", internal.EventRoundResult))

	event, _ = notifier.last("conn_alice")
	result = event.Data.(internal.RoundResult)
	assert.Equal(t, "Draw", result.Result)
	assert.Equal(t, "It's a draw!", result.Message["alice"])
}

// TestCoordinator_WaitTimeout 測試等待逾時：
// 單人房間逾時後依序收到 opponent-timeout、timeout，房間被移除
func TestCoordinator_WaitTimeout(t *testing.T) {
	coordinator, notifier := newTestCoordinator(40 * time.Millisecond)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))

	require.Eventually(t, func() bool {
		return coordinator.Stats()["total_rooms"] == 0
	}, time.Second, 10*time.Millisecond, "room should be evicted after wait timeout")

	assert.Equal(t, []string{
		internal.EventWaitingOpponent,
		internal.EventOpponentTimeout,
		internal.EventTimeout,
	}, notifier.events("conn_alice"))

	// 逾時被回收後，同名房間可以重新創建
	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	assert.Equal(t, 1, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_TimeoutCanceledBySecondJoin 測試計時器取消：
// 第二人加入後計時器作廢，不再有逾時事件
func TestCoordinator_TimeoutCanceledBySecondJoin(t *testing.T) {
	coordinator, notifier := newTestCoordinator(40 * time.Millisecond)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	// 等超過逾時長度，已取消的計時器不得動作
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, 0, notifier.totalCount(internal.EventOpponentTimeout))
	assert.Equal(t, 0, notifier.totalCount(internal.EventTimeout))
	assert.Equal(t, 1, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_RoomFull 測試滿房拒絕：
// 第三人收到 room-full，房間成員不變，且第三人可另尋房間
func TestCoordinator_RoomFull(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	err := coordinator.Join("conn_carol", "R1", "carol")
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrRoomFull)
	assert.Equal(t, []string{internal.EventRoomFull}, notifier.events("conn_carol"))

	stats := coordinator.Stats()
	assert.Equal(t, 1, stats["total_rooms"])
	assert.Equal(t, 2, stats["total_players"])

	// 被拒絕的連接沒有成員資格，可以加入其他房間
	require.NoError(t, coordinator.Join("conn_carol", "R2", "carol"))
	assert.Equal(t, 2, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_AlreadyInRoom 測試重複加入：
// 已有成員資格的連接被拒絕，並告知既有房間 ID
func TestCoordinator_AlreadyInRoom(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))

	err := coordinator.Join("conn_alice", "R2", "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrAlreadyInRoom)

	event, ok := notifier.last("conn_alice")
	require.True(t, ok)
	assert.Equal(t, internal.EventAlreadyInRoom, event.Event)
	assert.Equal(t, internal.RoomRef{RoomID: "R1"}, event.Data)

	// 被拒絕的加入不應創建目標房間
	assert.Equal(t, 1, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_InvalidRoomID 測試房間 ID 驗證
func TestCoordinator_InvalidRoomID(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	tests := []struct {
		name   string
		roomID string
	}{
		{"empty room id", ""},
		{"room id too long", strings.Repeat("x", 65)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := coordinator.Join("conn_alice", tt.roomID, "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, internal.ErrInvalidRoomID)
		})
	}

	assert.Equal(t, 2, notifier.count("conn_alice", internal.EventInvalidRoom))
	assert.Equal(t, 0, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_InvalidMove 測試非法出拳：
// 回報 invalid-move 且不套用，不影響後續合法出拳
func TestCoordinator_InvalidMove(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	err := coordinator.SubmitMove("conn_alice", "R1", "lizard")
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrInvalidMove)
	assert.Equal(t, 1, notifier.count("conn_alice", internal.EventInvalidMove))

	// 非法出拳沒有被記錄：bob 出拳後回合仍未判定
	require.NoError(t, coordinator.SubmitMove("conn_bob", "R1", internal.MoveRock))
	assert.Equal(t, 0, notifier.totalCount(internal.EventRoundResult))

	// alice 補上合法出拳後回合才判定
	require.NoError(t, coordinator.SubmitMove("conn_alice", "R1", internal.MovePaper))
	assert.Equal(t, 1, notifier.count("conn_alice", internal.EventRoundResult))
}

// TestCoordinator_MoveIgnoredEdgeCases 測試出拳的靜默忽略情境
func TestCoordinator_MoveIgnoredEdgeCases(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	// 房間不存在：可能剛逾時被移除，屬預期競態，靜默忽略
	require.NoError(t, coordinator.SubmitMove("conn_alice", "ghost", internal.MoveRock))
	assert.Empty(t, notifier.events("conn_alice"))

	// 非房間成員：同樣靜默忽略
	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))
	require.NoError(t, coordinator.SubmitMove("conn_carol", "R1", internal.MoveRock))
	assert.Empty(t, notifier.events("conn_carol"))
	assert.Equal(t, 0, notifier.totalCount(internal.EventRoundResult))
}

// TestCoordinator_Disconnect 測試斷線清理：
// 剩餘玩家收到 opponent-disconnected（附房間 ID），房間保留
func TestCoordinator_Disconnect(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	coordinator.Disconnect("conn_alice")

	event, ok := notifier.last("conn_bob")
	require.True(t, ok)
	assert.Equal(t, internal.EventOpponentDisconnected, event.Event)
	assert.Equal(t, internal.RoomRef{RoomID: "R1"}, event.Data)

	stats := coordinator.Stats()
	assert.Equal(t, 1, stats["total_rooms"])
	assert.Equal(t, 1, stats["total_players"])
	assert.Equal(t, 1, stats["waiting_rooms"])

	// 回到 Waiting 的房間可以接受新對手
	require.NoError(t, coordinator.Join("conn_carol", "R1", "carol"))
	assert.Equal(t, 2, notifier.count("conn_bob", internal.EventStartGame))
	assert.Equal(t, 1, notifier.count("conn_carol", internal.EventStartGame))
	assert.Equal(t, 2, coordinator.Stats()["total_players"])
}

// TestCoordinator_DisconnectLastPlayer 測試最後一人斷線：房間直接刪除
func TestCoordinator_DisconnectLastPlayer(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	coordinator.Disconnect("conn_alice")

	assert.Equal(t, 0, coordinator.Stats()["total_rooms"])
	assert.Equal(t, 0, notifier.totalCount(internal.EventOpponentDisconnected))

	// 不在任何房間的連接斷線是 no-op
	assert.NotPanics(t, func() {
		coordinator.Disconnect("conn_ghost")
	})
}

// TestCoordinator_DisconnectRearmsTimeout 測試斷線後重掛計時器：
// 回到 Waiting 的房間適用與新房間相同的逾時回收
func TestCoordinator_DisconnectRearmsTimeout(t *testing.T) {
	coordinator, notifier := newTestCoordinator(40 * time.Millisecond)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))

	coordinator.Disconnect("conn_alice")

	require.Eventually(t, func() bool {
		return coordinator.Stats()["total_rooms"] == 0
	}, time.Second, 10*time.Millisecond, "re-armed timeout should evict the room")

	assert.Equal(t, []string{
		internal.EventStartGame,
		internal.EventOpponentDisconnected,
		internal.EventOpponentTimeout,
		internal.EventTimeout,
	}, notifier.events("conn_bob"))
}

// TestCoordinator_DisconnectClearsPendingMove 測試斷線時清除剩餘玩家
// 未判定的出拳，避免殘留的出拳套到下一位對手身上
func TestCoordinator_DisconnectClearsPendingMove(t *testing.T) {
	coordinator, notifier := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R1", "bob"))
	require.NoError(t, coordinator.SubmitMove("conn_bob", "R1", internal.MoveRock))

	coordinator.Disconnect("conn_alice")
	require.NoError(t, coordinator.Join("conn_carol", "R1", "carol"))

	// carol 出拳後不應立即判定：bob 斷線前的出拳已被清除
	require.NoError(t, coordinator.SubmitMove("conn_carol", "R1", internal.MoveScissors))
	assert.Equal(t, 0, notifier.totalCount(internal.EventRoundResult))

	require.NoError(t, coordinator.SubmitMove("conn_bob", "R1", internal.MovePaper))
	assert.Equal(t, 1, notifier.count("conn_carol", internal.EventRoundResult))
}

// TestCoordinator_OneRoomPerConnection 測試全域不變量：
// 一個連接任何時刻最多出現在一個房間
func TestCoordinator_OneRoomPerConnection(t *testing.T) {
	coordinator, _ := newTestCoordinator(time.Minute)
	defer coordinator.Stop()

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.Error(t, coordinator.Join("conn_alice", "R2", "alice"))
	require.Error(t, coordinator.Join("conn_alice", "R1", "alice"))

	stats := coordinator.Stats()
	assert.Equal(t, 1, stats["total_rooms"])
	assert.Equal(t, 1, stats["total_players"])

	// 斷線釋放成員資格後才能再加入
	coordinator.Disconnect("conn_alice")
	require.NoError(t, coordinator.Join("conn_alice", "R2", "alice"))
	assert.Equal(t, 1, coordinator.Stats()["total_rooms"])
}

// TestCoordinator_Stop 測試停止：所有房間與計時器一併清除
func TestCoordinator_Stop(t *testing.T) {
	coordinator, notifier := newTestCoordinator(40 * time.Millisecond)

	require.NoError(t, coordinator.Join("conn_alice", "R1", "alice"))
	require.NoError(t, coordinator.Join("conn_bob", "R2", "bob"))

	coordinator.Stop()
	assert.Equal(t, 0, coordinator.Stats()["total_rooms"])

	// 已取消的計時器不得再發出逾時事件
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, notifier.totalCount(internal.EventOpponentTimeout))
}
