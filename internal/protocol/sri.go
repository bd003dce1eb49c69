package protocol

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"time"
)

const sriCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewSRI는 소켓 요청 식별자(12자 영숫자)를 생성. crypto 실패 시 타임스탬프 기반으로 대체.
func NewSRI() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%012d", time.Now().UnixNano()%1e12)
	}
	for i := range b {
		b[i] = sriCharset[int(b[i])%len(sriCharset)]
	}
	return string(b)
}

// PlayURL은 플레이 소켓 주소를 만든다. base는 wss://socket5.lichess.org 형태.
func PlayURL(base, gameID, sri string) string {
	return fmt.Sprintf("%s/play/%s/v6?sri=%s", base, url.PathEscape(gameID), url.QueryEscape(sri))
}
