package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// CookieCodec はセッションIDをHMAC-SHA256で署名してCookie値に変換する。
// Cookie値は "<session_id>.<hex署名>" 形式で、
// 署名が一致しない値は復号段階で拒否される。
type CookieCodec struct {
	secret []byte
}

// NewCookieCodec はCookieCodecを生成する。
func NewCookieCodec(secret string) *CookieCodec {
	return &CookieCodec{secret: []byte(secret)}
}

// Encode はセッションIDを署名付きCookie値に変換する。
func (c *CookieCodec) Encode(sessionID string) string {
	return sessionID + "." + c.sign(sessionID)
}

// Decode は署名付きCookie値を検証し、セッションIDを取り出す。
// 署名が不正な場合はエラーを返す。
func (c *CookieCodec) Decode(value string) (string, error) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", fmt.Errorf("malformed session cookie")
	}

	sessionID := value[:idx]
	signature := value[idx+1:]

	expected := c.sign(sessionID)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", fmt.Errorf("session cookie signature mismatch")
	}

	return sessionID, nil
}

// sign はセッションIDのHMAC-SHA256署名をhexで返す。
func (c *CookieCodec) sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
