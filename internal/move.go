package internal

import "fmt"

// Move 玩家出拳
//
// 以字串枚舉表示，與線上格式一致，僅接受三種合法值。
// 非法值必須在邊界（事件解析層）就被擋下，不應流入判定邏輯。
type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
)

// Valid 檢查是否為合法出拳
func (m Move) Valid() bool {
	switch m {
	case MoveRock, MovePaper, MoveScissors:
		return true
	}
	return false
}

// beats 循環克制關係：石頭勝剪刀、剪刀勝布、布勝石頭
//
// 三種出拳兩兩相異時，恰好只有一方克制另一方（反對稱性），
// 這是回合判定正確性的基礎。
func (m Move) beats(other Move) bool {
	return (m == MoveRock && other == MoveScissors) ||
		(m == MoveScissors && other == MovePaper) ||
		(m == MovePaper && other == MoveRock)
}

// Verdict 回合判定結果
type Verdict struct {
	Result  string            // "Draw" 或 "<玩家名稱> wins"
	Message map[string]string // 以玩家名稱為鍵的個別訊息
}

// Resolve 判定一回合的勝負
//
// 純函數：無副作用、結果確定，多個房間可同時呼叫（無共享狀態）。
// 出拳應在事件邊界驗證完畢；若仍收到非法值，回傳 ErrInvalidMove
// 而非默默套用預設值。
func Resolve(move1, move2 Move, name1, name2 string) (Verdict, error) {
	if !move1.Valid() || !move2.Valid() {
		return Verdict{}, fmt.Errorf("%w: %q vs %q", ErrInvalidMove, move1, move2)
	}

	if move1 == move2 {
		return Verdict{
			Result: "Draw",
			Message: map[string]string{
				name1: "It's a draw!",
				name2: "It's a draw!",
			},
		}, nil
	}

	if move1.beats(move2) {
		return Verdict{
			Result: fmt.Sprintf("%s wins", name1),
			Message: map[string]string{
				name1: "You win!",
				name2: "You lose!",
			},
		}, nil
	}

	return Verdict{
		Result: fmt.Sprintf("%s wins", name2),
		Message: map[string]string{
			name1: "You lose!",
			name2: "You win!",
		},
	}, nil
}
