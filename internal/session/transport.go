package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/guard"
	"lichess-pilot/internal/protocol"
)

type SocketState int

const (
	StateClosed SocketState = iota
	StateConnecting
	StateOpen
)

func (s SocketState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

type FrameCallback func(env protocol.Envelope)

type StateCallback func(state SocketState)

// HeaderProvider는 핸드셰이크에 얹을 헤더(세션 쿠키 등).
type HeaderProvider func() map[string]string

type frameCallbackEntry struct {
	id       int
	callback FrameCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Transport는 플레이 소켓 하나를 소유하는 유일한 송신 경로.
// 모든 수는 SendMove를 거치며, 가드 통과 없이는 네트워크에 쓰지 않는다.
// 재접속 시도는 하지 않는다. 끊기면 Closed로 내려가고 재다이얼은 호출측 몫이다.
type Transport struct {
	wsBase string
	gameID string
	sri    string
	st     *guard.State

	conn   *websocket.Conn
	state  SocketState
	stateM sync.RWMutex

	frameCbs []frameCallbackEntry
	stateCbs []stateCallbackEntry
	cbM      sync.RWMutex

	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewTransport(wsBase, gameID string, st *guard.State) *Transport {
	return &Transport{
		wsBase:       wsBase,
		gameID:       gameID,
		sri:          protocol.NewSRI(),
		st:           st,
		state:        StateClosed,
		pingInterval: 25 * time.Second,
		stopCh:       make(chan struct{}),
		frameCbs:     make([]frameCallbackEntry, 0),
		stateCbs:     make([]stateCallbackEntry, 0),
	}
}

// SetHeaderProvider는 핸드셰이크 헤더 주입을 등록한다.
func (t *Transport) SetHeaderProvider(h HeaderProvider) {
	t.headerProvider = h
}

func (t *Transport) SRI() string { return t.sri }

// Connect는 소켓을 연다. 실패하면 Closed로 남고 재시도하지 않는다.
func (t *Transport) Connect(ctx context.Context) error {
	t.stateM.Lock()
	if t.state == StateOpen || t.state == StateConnecting {
		t.stateM.Unlock()
		return nil
	}
	t.stateM.Unlock()

	if t.rootCancel != nil {
		t.rootCancel()
	}
	t.rootCtx, t.rootCancel = context.WithCancel(context.Background())
	t.setState(StateConnecting)

	endpoint := protocol.PlayURL(t.wsBase, t.gameID, t.sri)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      t.buildHeaders(),
	})
	if err != nil {
		t.setState(StateClosed)
		botlog.L().Warn("socket_dial_failed", zap.String("endpoint", endpoint), zap.Error(err))
		return err
	}

	t.stateM.Lock()
	t.conn = conn
	t.stateM.Unlock()
	t.setState(StateOpen)
	botlog.L().Info("socket_connected", zap.String("game_id", t.gameID), zap.String("sri", t.sri))

	readCtx := t.rootCtx
	t.wg.Add(2)
	go t.listen(conn, readCtx)
	go t.pingLoop(conn, readCtx)
	return nil
}

// SendMove는 가드를 통과한 수 하나를 쓴다. 막히면 로그만 남기고 false.
func (t *Transport) SendMove(ctx context.Context, id uuid.UUID, uci string, ackPly, lagMs int, berserk bool) bool {
	t.stateM.RLock()
	conn, state := t.conn, t.state
	t.stateM.RUnlock()
	if conn == nil || state != StateOpen {
		botlog.L().Warn("move_blocked_socket_closed",
			zap.String("move", uci),
			zap.String("state", state.String()))
		return false
	}

	if t.st != nil {
		if err := t.st.Submit(id, uci); err != nil {
			return false
		}
	}

	flag := 0
	if berserk {
		flag = 1
	}
	env, err := protocol.EncodeMove(protocol.OutboundMove{
		UCI:     uci,
		AckPly:  ackPly,
		Berserk: flag,
		LagMs:   lagMs,
	})
	if err != nil {
		botlog.L().Error("move_encode_failed", zap.String("move", uci), zap.Error(err))
		return false
	}

	writeCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := wsjson.Write(writeCtx, conn, env); err != nil {
		// pending은 유지한다. 재접속 후 같은 id로 재전송하는 경로가 푼다.
		botlog.L().Warn("move_write_failed", zap.String("move", uci), zap.Error(err))
		t.dropConn(conn, websocket.StatusGoingAway, "write failure")
		return false
	}

	botlog.L().Info("move_sent",
		zap.String("move", uci),
		zap.Int("ack_ply", ackPly),
		zap.Int("claimed_lag_ms", lagMs),
		zap.Bool("berserk", berserk))
	return true
}

func (t *Transport) listen(conn *websocket.Conn, ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		var env protocol.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if t.isStopping() {
				return
			}
			botlog.L().Warn("socket_read_failed", zap.Error(err))
			t.dropConn(conn, websocket.StatusGoingAway, "read failure")
			return
		}
		t.dispatch(env)
	}
}

// dispatch는 수신 순서 그대로, 한 프레임씩 차례로 콜백을 부른다.
func (t *Transport) dispatch(env protocol.Envelope) {
	t.cbM.RLock()
	callbacks := make([]frameCallbackEntry, len(t.frameCbs))
	copy(callbacks, t.frameCbs)
	t.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(env)
		}
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn, ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	consecutiveFailures := 0
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !t.owns(conn) {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				consecutiveFailures++
				if consecutiveFailures >= 2 {
					if t.isStopping() {
						return
					}
					botlog.L().Warn("socket_ping_failed", zap.Error(err))
					t.dropConn(conn, websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			consecutiveFailures = 0
		}
	}
}

func (t *Transport) OnFrame(cb FrameCallback) int {
	t.cbM.Lock()
	defer t.cbM.Unlock()
	id := len(t.frameCbs) + 1
	t.frameCbs = append(t.frameCbs, frameCallbackEntry{id: id, callback: cb})
	return id
}

func (t *Transport) RemoveFrameCallback(id int) {
	t.cbM.Lock()
	defer t.cbM.Unlock()
	for i, cb := range t.frameCbs {
		if cb.id == id {
			t.frameCbs = append(t.frameCbs[:i], t.frameCbs[i+1:]...)
			break
		}
	}
}

func (t *Transport) OnStateChange(cb StateCallback) int {
	t.cbM.Lock()
	defer t.cbM.Unlock()
	id := len(t.stateCbs) + 1
	t.stateCbs = append(t.stateCbs, stateCallbackEntry{id: id, callback: cb})
	return id
}

func (t *Transport) RemoveStateCallback(id int) {
	t.cbM.Lock()
	defer t.cbM.Unlock()
	for i, cb := range t.stateCbs {
		if cb.id == id {
			t.stateCbs = append(t.stateCbs[:i], t.stateCbs[i+1:]...)
			break
		}
	}
}

func (t *Transport) State() SocketState {
	t.stateM.RLock()
	defer t.stateM.RUnlock()
	return t.state
}

func (t *Transport) setState(state SocketState) {
	t.stateM.Lock()
	t.state = state
	t.stateM.Unlock()

	t.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(t.stateCbs))
	copy(callbacks, t.stateCbs)
	t.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

// dropConn은 이 세대의 conn만 내린다. 이미 교체됐으면 아무것도 안 한다.
func (t *Transport) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	t.stateM.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
	}
	t.stateM.Unlock()

	_ = conn.Close(code, reason)
	if current && !t.isStopping() {
		t.setState(StateClosed)
	}
}

func (t *Transport) owns(conn *websocket.Conn) bool {
	t.stateM.RLock()
	defer t.stateM.RUnlock()
	return t.conn == conn
}

func (t *Transport) isStopping() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

func (t *Transport) Close(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stopCh) })

	t.stateM.Lock()
	conn := t.conn
	t.conn = nil
	t.state = StateClosed
	t.stateM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if t.rootCancel != nil {
			t.rootCancel()
		}
		return nil
	}
}

func (t *Transport) buildHeaders() http.Header {
	hdr := http.Header{}
	if t.headerProvider == nil {
		return hdr
	}
	for k, v := range t.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
