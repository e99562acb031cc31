package config

import (
	"fmt"
)

type StorageKeyStruct struct{}

func NewStorageKeyStruct() *StorageKeyStruct {
	return &StorageKeyStruct{}
}

// AnonID is the durable key holding a device's anonymous id.
func (r *StorageKeyStruct) AnonID() string {
	return "anon_id"
}

// SeenHints is the session-scoped key holding the ever-opened hint levels of a question.
func (r *StorageKeyStruct) SeenHints(questionID int64) string {
	return fmt.Sprintf("seenHints-%d", questionID)
}

// DeviceNamespace prefixes the durable storage of one device.
func (r *StorageKeyStruct) DeviceNamespace(deviceID string) string {
	return fmt.Sprintf("device:%s:", deviceID)
}

// SessionNamespace prefixes the session-scoped storage of one browser session.
func (r *StorageKeyStruct) SessionNamespace(sessionID string) string {
	return fmt.Sprintf("session:%s:", sessionID)
}

// QuestionPayload caches a question fetched from the backend.
func (r *StorageKeyStruct) QuestionPayload(questionID int64) string {
	return fmt.Sprintf("question:%d:payload", questionID)
}

var StorageKey = NewStorageKeyStruct()
