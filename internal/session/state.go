package session

import (
	"fmt"
	"strconv"
	"strings"
)

type State int32

const (
	Idle State = iota
	Watching
	PendingWrite
	Writing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case PendingWrite:
		return "pending_write"
	case Writing:
		return "writing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type EventType string

const (
	EventSaved        EventType = "saved"
	EventSaveFailed   EventType = "save_failed"
	EventRemoteChange EventType = "remote_change"
	EventGone         EventType = "gone"
)

type SaveKind string

const (
	SaveAuto    SaveKind = "auto"
	SaveManual  SaveKind = "manual"
	SaveRestore SaveKind = "restore"
	SaveExit    SaveKind = "exit"
)

// writeID tags a push so its echo on the change feed can be recognised.
func writeID(sessionID string, seq int) string {
	return fmt.Sprintf("%s/%d", sessionID, seq)
}

// parseWriteID returns the sequence number if id was issued by sessionID.
func parseWriteID(sessionID, id string) (int, bool) {
	prefix := sessionID + "/"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	seq, err := strconv.Atoi(id[len(prefix):])
	if err != nil {
		return 0, false
	}
	return seq, true
}
