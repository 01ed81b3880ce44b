package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
	"unicode/utf8"
)

// Conn 流所需的最小连接能力，net.Conn 满足
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// StreamConfig 帧参数，服务运行期间固定
type StreamConfig struct {
	LengthDigits int           // 长度字段宽度
	MaxBodyLen   int           // 消息体最大字节数
	ReadTimeout  time.Duration // 单次读超时，超时只是重试
	WriteTimeout time.Duration // 单次写超时，超时只是重试
	BufferSize   int           // 单次读缓冲
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		LengthDigits: 6,
		MaxBodyLen:   999999,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		BufferSize:   4096,
	}
}

// Validate 检查参数组合是否可用
func (c StreamConfig) Validate() error {
	if c.LengthDigits < 1 || c.LengthDigits > 9 {
		return fmt.Errorf("length digits %d out of range 1..9", c.LengthDigits)
	}
	if c.MaxBodyLen < 1 || len(strconv.Itoa(c.MaxBodyLen)) > c.LengthDigits {
		return fmt.Errorf("max body length %d does not fit %d digits", c.MaxBodyLen, c.LengthDigits)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("stream timeouts must be positive")
	}
	if c.BufferSize < 1 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// ConnectionError 底层连接无法继续读写（对端关闭或重置）
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "connection: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError 判断 err 链中是否有 ConnectionError
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Stream 在一条字节连接上收发长度前缀帧。
// Send 需要调用方保证单写者；接收同样只能有一个 goroutine。
type Stream struct {
	conn Conn
	cfg  StreamConfig
	buf  []byte
}

func NewStream(conn Conn, cfg StreamConfig) *Stream {
	return &Stream{conn: conn, cfg: cfg, buf: make([]byte, cfg.BufferSize)}
}

// Config 返回流的帧参数
func (s *Stream) Config() StreamConfig { return s.cfg }

// Send 编码并写出一帧
func (s *Stream) Send(ctx context.Context, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	if len(body) == 0 || len(body) > s.cfg.MaxBodyLen {
		return &ProtocolError{Reason: fmt.Sprintf("%s body of %d bytes exceeds limit %d", m.Kind(), len(body), s.cfg.MaxBodyLen)}
	}
	return s.writeFrame(ctx, body)
}

// SendEnd 写出零长度帧，表示不再有消息
func (s *Stream) SendEnd(ctx context.Context) error {
	return s.writeFrame(ctx, nil)
}

func (s *Stream) writeFrame(ctx context.Context, body []byte) error {
	frame := make([]byte, 0, s.cfg.LengthDigits+len(body))
	frame = append(frame, fmt.Sprintf("%0*d", s.cfg.LengthDigits, len(body))...)
	frame = append(frame, body...)
	for len(frame) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		n, err := s.conn.Write(frame)
		frame = frame[n:]
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return &ConnectionError{Err: err}
		}
	}
	return nil
}

// ReceiveOne 读出一条完整消息，返回消息和剩余字节。
// 收到结束帧时返回 nil 消息和 nil 错误。
func (s *Stream) ReceiveOne(ctx context.Context, pending []byte) (Message, []byte, error) {
	digits := s.cfg.LengthDigits
	for {
		if len(pending) >= digits {
			n, err := s.parseLength(pending[:digits])
			if err != nil {
				return nil, pending, err
			}
			if n == 0 {
				return nil, pending[digits:], nil
			}
			if len(pending) >= digits+n {
				body := pending[digits : digits+n]
				rest := pending[digits+n:]
				if !utf8.Valid(body) {
					return nil, rest, &ProtocolError{Reason: "body is not valid UTF-8"}
				}
				m, err := Decode(body)
				return m, rest, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, pending, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := s.conn.Read(s.buf)
		pending = append(pending, s.buf[:n]...)
		switch {
		case err == nil && n == 0:
			return nil, pending, &ConnectionError{Err: io.ErrUnexpectedEOF}
		case err == nil:
		case isTimeout(err):
		default:
			return nil, pending, &ConnectionError{Err: err}
		}
	}
}

// ReceiveLoop 持续接收并交给 sink，直到结束帧或出错。
// 结束帧返回 nil；剩余字节一并返回。
func (s *Stream) ReceiveLoop(ctx context.Context, sink func(Message) error, pending []byte) ([]byte, error) {
	for {
		m, rest, err := s.ReceiveOne(ctx, pending)
		pending = rest
		if err != nil {
			return pending, err
		}
		if m == nil {
			return pending, nil
		}
		if err := sink(m); err != nil {
			return pending, err
		}
	}
}

func (s *Stream) parseLength(field []byte) (int, error) {
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, &ProtocolError{Reason: fmt.Sprintf("non-numeric length field %q", field)}
		}
	}
	n, _ := strconv.Atoi(string(field))
	if n > s.cfg.MaxBodyLen {
		return 0, &ProtocolError{Reason: fmt.Sprintf("length %d exceeds limit %d", n, s.cfg.MaxBodyLen)}
	}
	return n, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
