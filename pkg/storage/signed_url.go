package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EvidenceURLSigner creates and validates signed view tokens for evidence
// photo object keys. The core never opens the objects themselves; tokens only
// prove that a given task/key pair was issued by us and has not expired.
type EvidenceURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewEvidenceURLSigner constructs a signer with the provided secret and TTL.
func NewEvidenceURLSigner(secret string, ttl time.Duration) *EvidenceURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &EvidenceURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token referencing the task and object key.
func (s *EvidenceURLSigner) Generate(taskID, objectKey string) (string, time.Time, error) {
	if taskID == "" || objectKey == "" {
		return "", time.Time{}, fmt.Errorf("taskID and objectKey required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(objectKey))
	payload := fmt.Sprintf("%s|%d|%s", taskID, expiresAt.Unix(), encodedKey)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{taskID, strconv.FormatInt(expiresAt.Unix(), 10), encodedKey, signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded task id and object key.
func (s *EvidenceURLSigner) Parse(token string) (taskID, objectKey string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	taskID = parts[0]
	ts := parts[1]
	encodedKey := parts[2]
	signature := parts[3]

	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode object key: %w", err)
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid expiry timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s|%s", taskID, ts, encodedKey)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}

	return taskID, string(rawKey), expiresAt, nil
}
