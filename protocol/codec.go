package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolError 帧或消息体不合法，对连接是致命的
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError 判断 err 链中是否有 ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// Encode 编码一条消息，type 总是第一个键。不修改 m，可并发调用。
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, &ProtocolError{Reason: "nil message"}
	}
	fields, err := json.Marshal(m)
	if err != nil {
		return nil, &ProtocolError{Reason: "encode " + string(m.Kind()), Err: err}
	}
	tag, _ := json.Marshal(m.Kind())
	body := make([]byte, 0, len(fields)+len(tag)+8)
	body = append(body, `{"type":`...)
	body = append(body, tag...)
	body = append(body, ',')
	return append(body, fields[1:]...), nil
}

// Decode 解码一条消息：按 type 查找变体并检查必需字段
func Decode(body []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ProtocolError{Reason: "malformed body", Err: err}
	}
	if fields == nil {
		return nil, &ProtocolError{Reason: "body is not an object"}
	}
	raw, ok := fields["type"]
	if !ok {
		return nil, &ProtocolError{Reason: "missing type"}
	}
	var kind Kind
	if err := json.Unmarshal(raw, &kind); err != nil {
		return nil, &ProtocolError{Reason: "type is not a string", Err: err}
	}
	m, ok := New(kind)
	if !ok {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown type %q", kind)}
	}
	for _, name := range requiredFields[kind] {
		if _, ok := fields[name]; !ok {
			return nil, &ProtocolError{Reason: fmt.Sprintf("%s: missing field %q", kind, name)}
		}
	}
	if err := json.Unmarshal(body, m); err != nil {
		return nil, &ProtocolError{Reason: "decode " + string(kind), Err: err}
	}
	return m, nil
}

// SameChallenge 两个邀请是否为同一个待处理邀请（发起者相同即可）
func SameChallenge(a, b *Challenge) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.OriginID == b.OriginID
}

// Equal 消息相等：Challenge 比较发起者，其他变体比较完整字段
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if ca, ok := a.(*Challenge); ok {
		return SameChallenge(ca, b.(*Challenge))
	}
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
