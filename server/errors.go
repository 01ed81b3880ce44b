package server

import (
	"errors"
	"fmt"
)

// AdmissionError 握手被拒，Reason 原样写进 Bye 的 extra_info_str
type AdmissionError struct {
	Reason string
}

func (e *AdmissionError) Error() string { return "admission: " + e.Reason }

var (
	ErrRegistryFull      = &AdmissionError{Reason: "Too many connections!"}
	ErrProtocolViolation = &AdmissionError{Reason: "Protocol violation!"}
	ErrBadCredentials    = &AdmissionError{Reason: "Wrong user/pass!"}
	ErrInvalidName       = &AdmissionError{Reason: "Invalid name"}
	ErrNameInUse         = &AdmissionError{Reason: "Name already in use - please connect again."}
)

// KickError 已登录玩家的请求不合法，Reason 发给被踢的玩家，Err 只写日志
type KickError struct {
	Reason string
	Err    error
}

func (e *KickError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kick: %s: %v", e.Reason, e.Err)
	}
	return "kick: " + e.Reason
}

func (e *KickError) Unwrap() error { return e.Err }

func kick(reason string, err error) error {
	return &KickError{Reason: reason, Err: err}
}

// kickReason 从错误链中取出发给玩家的原因
func kickReason(err error) string {
	var ke *KickError
	if errors.As(err, &ke) {
		return ke.Reason
	}
	return err.Error()
}
