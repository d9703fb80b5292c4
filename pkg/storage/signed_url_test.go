package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvidenceURLSignerGenerateAndParse(t *testing.T) {
	signer := NewEvidenceURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("task-1", "evidence/task-1/photo.jpg")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	taskID, key, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "task-1", taskID)
	require.Equal(t, "evidence/task-1/photo.jpg", key)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestEvidenceURLSignerTampered(t *testing.T) {
	signer := NewEvidenceURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("task-1", "evidence/task-1/photo.jpg")
	require.NoError(t, err)

	other := NewEvidenceURLSigner("different", time.Hour)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestEvidenceURLSignerExpired(t *testing.T) {
	signer := &EvidenceURLSigner{secret: []byte("secret"), ttl: -time.Minute}
	token, _, err := signer.Generate("task-1", "evidence/task-1/photo.jpg")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}
