package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 리체스 v6 플레이 소켓 프레임 타입.
type FrameType = string

const (
	FrameMove    FrameType = "move"
	FrameAck     FrameType = "ack"
	FrameEndData FrameType = "endData"
	FrameReload  FrameType = "reload"
	FrameResync  FrameType = "resync"
	FrameCrowd   FrameType = "crowd"
)

// Envelope는 {t, d} 봉투. d는 타입별로 해석.
type Envelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

func (e Envelope) HasPayload() bool { return len(e.D) > 0 }

// OutboundMove는 서버로 보내는 수. b는 버서크 여부(0/1), l은 신고 랙(ms).
type OutboundMove struct {
	UCI     string `json:"u"`
	AckPly  int    `json:"a"`
	Berserk int    `json:"b"`
	LagMs   int    `json:"l"`
}

func EncodeMove(m OutboundMove) (Envelope, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode move payload: %w", err)
	}
	return Envelope{T: FrameMove, D: raw}, nil
}

// MoveEvent는 수신 move 프레임의 d. 필드가 상황에 따라 빠질 수 있어 전부 optional.
type MoveEvent struct {
	UCI    string          `json:"uci,omitempty"`
	U      string          `json:"u,omitempty"`
	SAN    string          `json:"san,omitempty"`
	FEN    string          `json:"fen,omitempty"`
	Ply    int             `json:"ply,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
	Winner string          `json:"winner,omitempty"`
	Clock  *ClockEvent     `json:"clock,omitempty"`
}

// ClockEvent의 lag은 센티초 단위로 온다.
type ClockEvent struct {
	White float64 `json:"white"`
	Black float64 `json:"black"`
	Lag   int     `json:"lag,omitempty"`
}

// BestUCI는 uci/u 중 채워진 쪽을 반환.
func (m MoveEvent) BestUCI() string {
	if m.UCI != "" {
		return m.UCI
	}
	return m.U
}

// Ended는 status 또는 winner가 실려오면 게임 종료로 본다.
func (m MoveEvent) Ended() bool {
	return len(m.Status) > 0 || m.Winner != ""
}

// LagMs는 clock.lag을 ms로 환산. 클럭이 없으면 0.
func (m MoveEvent) LagMs() int {
	if m.Clock == nil || m.Clock.Lag <= 0 {
		return 0
	}
	return m.Clock.Lag * 10
}

// EndEvent는 endData 프레임의 d.
type EndEvent struct {
	Status json.RawMessage `json:"status,omitempty"`
	Winner string          `json:"winner,omitempty"`
}

// StatusName은 status가 문자열이든 {id,name} 객체든 이름만 뽑는다.
func StatusName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return strings.TrimSpace(string(raw))
}

func DecodeMoveEvent(d json.RawMessage) (MoveEvent, error) {
	var ev MoveEvent
	if len(d) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(d, &ev); err != nil {
		return MoveEvent{}, fmt.Errorf("decode move event: %w", err)
	}
	return ev, nil
}

func DecodeEndEvent(d json.RawMessage) (EndEvent, error) {
	var ev EndEvent
	if len(d) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(d, &ev); err != nil {
		return EndEvent{}, fmt.Errorf("decode end event: %w", err)
	}
	return ev, nil
}
