package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoSession = errors.New("no_session")

// Session은 브라우저 로그인에서 가져온 리체스 세션 쿠키 묶음.
type Session struct {
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token,omitempty"`
	Username  string `json:"username,omitempty"`
}

const (
	sessionDirName  = "lichess-pilot"
	sessionFileName = "session.json"

	// 리체스 세션 쿠키 이름.
	sessionCookieName = "lila2"
)

// SessionPath는 세션 파일 경로. explicit이 비어 있으면 사용자 설정 디렉터리 아래.
func SessionPath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, sessionDirName, sessionFileName), nil
}

// LoadSession은 저장된 세션을 읽는다. 파일이 없으면 ErrNoSession.
func LoadSession(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSession, path)
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return nil, fmt.Errorf("%w: empty session_id in %s", ErrNoSession, path)
	}
	return &s, nil
}

// Save는 세션을 디스크에 남긴다. 디렉터리는 만들어 준다.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// CookieHeader는 Cookie 헤더 값.
func (s *Session) CookieHeader() string {
	return sessionCookieName + "=" + s.SessionID
}

// Headers는 HTTP와 웹소켓이 같이 쓰는 인증 헤더 묶음.
func (s *Session) Headers() map[string]string {
	if s == nil || strings.TrimSpace(s.SessionID) == "" {
		return nil
	}
	return map[string]string{"Cookie": s.CookieHeader()}
}
