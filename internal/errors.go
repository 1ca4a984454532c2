package internal

import "errors"

// 錯誤分類
//
// 所有錯誤都是可恢復的，只影響發起操作的連接，不會終止行程或波及其他房間。
// 「房間不存在」不在此列：操作引用不存在的房間視為預期競態
// （房間可能剛逾時被移除），靜默忽略而非回報錯誤。
var (
	ErrAlreadyInRoom = errors.New("連接已在其他房間中")
	ErrRoomFull      = errors.New("房間已滿")
	ErrInvalidMove   = errors.New("無效的出拳")
	ErrInvalidRoomID = errors.New("無效的房間 ID")
)
