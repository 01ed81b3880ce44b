package game

import "fmt"

// ValidationError 请求本身不合法（坐标越界、重复射击、布阵违规等）
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "game: invalid request: " + e.Reason
}

// StateError 请求本身合法，但与当前对局状态不符（未轮到、棋盘已锁定等）
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "game: wrong state: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func wrongStatef(format string, args ...any) error {
	return &StateError{Reason: fmt.Sprintf(format, args...)}
}
