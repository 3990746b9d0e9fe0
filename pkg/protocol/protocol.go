// Package protocol defines the JSON frames exchanged between the bridge and
// the notes application over the WebSocket transport. Every frame is a
// self-contained JSON object tagged with a "type" discriminant.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound frame types (bridge -> app).
const (
	TypeConnected         = "connected"
	TypeAgentText         = "agent_text"
	TypeAgentTyping       = "agent_typing"
	TypeAgentDone         = "agent_done"
	TypeErrorFrame        = "error"
	TypePulse             = "pulse"
	TypeThreadListRequest = "thread_list_request"
	TypeThreadInfoRequest = "thread_info_request"
	TypeFileSync          = "file_sync"
	TypeFileSnapshot      = "file_snapshot"
)

// Inbound frame types (app -> bridge).
const (
	TypeUserMessage     = "user_message"
	TypeThreadList      = "thread_list"
	TypeResponse        = "response"
	TypeFileSyncPush    = "file_sync_push"
	TypeFileSnapshotAck = "file_snapshot_ack"
)

// File sync actions.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
	ActionRename = "rename"
)

// CloseSuperseded is the reserved close code signalling that a newer session
// has replaced this one. A session closed with this code must not reconnect.
const CloseSuperseded = 4001

// Envelope is the minimal shape shared by every frame, used to route an
// inbound message before full decoding.
type Envelope struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

// Handshake is the first frame sent after the socket opens.
type Handshake struct {
	Type string `json:"type"`
}

// AgentText carries a chunk of generated reply text, optionally scoped to a
// conversation and thread.
type AgentText struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Content  string `json:"content"`
}

// AgentSignal covers the payload-free lifecycle frames (agent_typing,
// agent_done).
type AgentSignal struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

// ErrorFrame reports a failure as text. This is the only way user-visible
// failure crosses the wire.
type ErrorFrame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	Error    string `json:"error"`
}

// Pulse is a periodic liveness frame.
type Pulse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// FileEntry is one (path, content) pair. Paths are relative, forward-slash
// separated.
type FileEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileSnapshot is the full initial upload of local document contents.
type FileSnapshot struct {
	Type  string      `json:"type"`
	Files []FileEntry `json:"files"`
}

// FileSync reports one locally-originated change.
type FileSync struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// UserMessage is a conversational message typed by the user in the app.
type UserMessage struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	ThreadID    string          `json:"threadId,omitempty"`
	Content     string          `json:"content"`
	NoteContext string          `json:"noteContext,omitempty"`
	History     json.RawMessage `json:"history,omitempty"`
}

// Thread is a remote-side addressable conversation context.
type Thread struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "file" or "folder"
	Name string `json:"name"`
	Path string `json:"path"`
}

// ThreadList replaces the bridge's thread cache wholesale.
type ThreadList struct {
	Type    string   `json:"type"`
	Threads []Thread `json:"threads"`
}

// FileSyncPush is a remotely-originated change to apply locally.
type FileSyncPush struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	OldPath string `json:"oldPath,omitempty"`
	Version int    `json:"version"`
}

// SnapshotUpdate is one server-side document missing locally, delivered in
// response to a snapshot.
type SnapshotUpdate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Version int    `json:"version"`
	Action  string `json:"action"`
}

// FileSnapshotAck is the app's response to a snapshot.
type FileSnapshotAck struct {
	Type    string           `json:"type"`
	Updates []SnapshotUpdate `json:"updates"`
}

// DecodeEnvelope extracts the type discriminant (and requestId, when present)
// from a raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("decode frame: missing type discriminant")
	}
	return env, nil
}

// Request builds a request frame of the given kind: the params are flattened
// into the top-level object alongside type and requestId.
func Request(kind, requestID string, params map[string]any) ([]byte, error) {
	frame := make(map[string]any, len(params)+2)
	for k, v := range params {
		frame[k] = v
	}
	frame["type"] = kind
	frame["requestId"] = requestID
	return json.Marshal(frame)
}
