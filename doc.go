// Package matchmaking 提供了一個即時的兩人對戰配對與會話服務器。
//
// 實現了匿名連接的配對、房間狀態追蹤與回合判定，包含以下核心功能：
//
// 配對與房間管理
//
// 提供完整的房間生命週期管理：
//   - 首次加入時惰性創建房間（房間 ID 由呼叫端自定）
//   - 兩名玩家到齊即開始對戰
//   - 等待對手逾時的自動回收（預設 30 秒）
//   - 斷線清理與對手通知
//
// 回合判定
//
// 純函數的勝負判定：
//   - 石頭勝剪刀、剪刀勝布、布勝石頭
//   - 相同出拳為平手
//   - 兩人都出拳後廣播結果並重置，回合可無限重複
//
// # WebSocket 通訊
//
// 實現了即時雙向通訊機制：
//   - 顯式的事件信封（type + data），邊界驗證後才進入協調器
//   - 支援心跳檢測（Ping/Pong）
//   - 訊息廣播與單播
//   - 連接身份以 uuid 指派，斷線即作廢
//
// 併發安全設計
//
// 採用單一事件流的併發模型：
//   - 所有 join/move/disconnect 事件與逾時觸發，都作為離散、
//     不重疊的工作單位套用到共享狀態
//   - 逾時計時器以實例指標與世代計數器防止與取消競速
//   - 廣播為發送即忘，經由緩衝 channel 非同步遞送
//
// 使用範例
//
// 啟動服務器：
//
//	hub := internal.NewHub("*", logger)
//	coordinator := internal.NewCoordinator(hub, logger, internal.Config{})
//	hub.SetCoordinator(coordinator)
//	handler := internal.NewHandler(coordinator, hub, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", handler.Routes())
//	mux.HandleFunc("GET /ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8080", mux))
//
// 客戶端加入房間：
//
//	{"type": "join-room", "data": {"roomId": "R1", "username": "alice"}}
//
// 出拳：
//
//	{"type": "make-move", "data": {"roomId": "R1", "move": "rock"}}
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Handler 層：處理 HTTP 存活檢查與統計
//   - Coordinator 層：會話協調與房間狀態機
//   - Registry 層：行程範圍的房間註冊表
//   - WebSocket 層：處理即時通訊與連接身份
//
// 配置選項
//
// 支援多種運行時配置：
//   - -port：服務監聽端口（預設 8080）
//   - -allowed-origin：允許的跨來源值（預設 "*"）
//   - -wait-timeout：等待對手的逾時（預設 30s）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 限制
//
// 刻意不提供的能力：
//   - 房間與結果不跨重啟持久化（重啟後所有房間消失）
//   - 除顯示名稱外沒有身份驗證
//   - 單一行程，無跨行程共享狀態
package matchmaking
