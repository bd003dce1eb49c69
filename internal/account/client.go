package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"lichess-pilot/internal/botlog"
	"lichess-pilot/internal/domain"
)

var ErrSessionInvalid = errors.New("session_invalid")

// Client는 리체스 HTTP API 클라이언트. 세션 쿠키로 인증한다.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	session *Session

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, session *Session, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		session:        session,
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate는 /api/account로 세션을 검증하고 계정 정보를 돌려준다.
func (c *Client) Validate(ctx context.Context) (domain.Account, error) {
	var acct domain.Account
	if err := c.getJSON(ctx, "/api/account", &acct); err != nil {
		return domain.Account{}, err
	}
	if acct.ID == "" {
		return domain.Account{}, fmt.Errorf("account response missing id")
	}
	botlog.L().Info("session_validated", zap.String("username", acct.Username))
	return acct, nil
}

// Opponent는 진행 중인 판의 상대 요약.
type Opponent struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// PlayingGame은 /api/account/playing의 nowPlaying 한 건.
type PlayingGame struct {
	GameID      string   `json:"gameId"`
	FullID      string   `json:"fullId"`
	Color       string   `json:"color"`
	FEN         string   `json:"fen"`
	LastMove    string   `json:"lastMove"`
	Speed       string   `json:"speed"`
	IsMyTurn    bool     `json:"isMyTurn"`
	SecondsLeft int      `json:"secondsLeft"`
	Opponent    Opponent `json:"opponent"`
}

type playingResponse struct {
	NowPlaying []PlayingGame `json:"nowPlaying"`
}

// Playing은 진행 중인 판 목록.
func (c *Client) Playing(ctx context.Context) ([]PlayingGame, error) {
	var resp playingResponse
	if err := c.getJSON(ctx, "/api/account/playing", &resp); err != nil {
		return nil, err
	}
	return resp.NowPlaying, nil
}

// ActiveGame은 GAME_ID 없이 기동할 때의 판 발견. 내 차례인 판을 우선한다.
func (c *Client) ActiveGame(ctx context.Context) (PlayingGame, bool, error) {
	games, err := c.Playing(ctx)
	if err != nil {
		return PlayingGame{}, false, err
	}
	if len(games) == 0 {
		return PlayingGame{}, false, nil
	}
	for _, g := range games {
		if g.IsMyTurn {
			return g, true, nil
		}
	}
	return games[0], true, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)
	req.Header.Set("Accept", "application/json")
	if c.session != nil {
		for k, v := range c.session.Headers() {
			req.Header.Set(k, v)
		}
	}

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts {
				return fmt.Errorf("request %s failed: %w", path, err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden {
			return fmt.Errorf("%w: status=%d", ErrSessionInvalid, status)
		}
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("lichess api error: path=%s status=%d body=%s", path, status, truncate(body, 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
