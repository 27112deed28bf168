package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// NewRandomToken 生成 URL 安全的随机串
func NewRandomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCodeVerifier 生成 PKCE code_verifier
func NewCodeVerifier() (string, error) {
	return NewRandomToken(32)
}

// CodeChallengeS256 计算 PKCE S256 code_challenge
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
