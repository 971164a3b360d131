// Package wsproto defines the JSON envelopes exchanged between the
// gateway and its browser clients over websocket connections.
package wsproto

import (
	"encoding/json"
	"time"
)

// Client-originated actions.
const (
	ActionPtyInput  = "pty_input"
	ActionPtyResize = "pty_resize"

	ActionListFiles    = "list_files"
	ActionShellDetect  = "shell_detect"
	ActionUploadFile   = "upload_file"
	ActionDownloadFile = "download_file"
)

// Server-originated actions.
const (
	ActionError            = "error"
	ActionConnectionStatus = "connection_status"
	ActionTunnelStatus     = "UPDATE-TUNNEL-STATUS"
	ActionTunnelStatusData = "UPDATE-TUNNEL-STATUS-DATA"

	ActionPermissionGranted = "permission_granted"
	ActionPermissionUpdated = "permission_updated"
	ActionPermissionRevoked = "permission_revoked"
)

// ClientMessage is the envelope for every client-to-server operation.
type ClientMessage struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the typed envelope sent to file-manager, watch, and
// notification clients. Terminal output bypasses it as raw frames.
type ServerMessage struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// InputPayload carries raw terminal input bytes.
type InputPayload struct {
	Input string `json:"input"`
}

// ResizePayload carries new pseudo-terminal geometry. Applied
// immediately, never buffered.
type ResizePayload struct {
	Rows     uint16 `json:"rows"`
	Cols     uint16 `json:"cols"`
	WidthPx  uint16 `json:"width_px,omitempty"`
	HeightPx uint16 `json:"height_px,omitempty"`
}

// ListFilesPayload names the directory to list.
type ListFilesPayload struct {
	Path string `json:"path"`
}

// UploadPayload names the remote destination for a prepared upload.
type UploadPayload struct {
	DestinationPath string `json:"destination_path"`
}

// DownloadPayload names the remote path for a prepared download.
type DownloadPayload struct {
	Path string `json:"path"`
}

// ErrorData is the data field of an error envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionStatus reports one endpoint's tunnel state change.
type ConnectionStatus struct {
	Type        string `json:"type"`
	EndpointID  string `json:"endpoint_id"`
	RelayPort   int    `json:"relay_port"`
	IsConnected bool   `json:"is_connected"`
	Name        string `json:"name"`
}

// FileEntry is one normalized directory listing entry.
type FileEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // "file" or "directory"
	Size int64  `json:"size"`
}

// ListFilesResult is the success payload of list_files.
type ListFilesResult struct {
	Path  string      `json:"path"`
	Total int         `json:"total"`
	Files []FileEntry `json:"files"`
}

// ShellDetectResult is the success payload of shell_detect.
type ShellDetectResult struct {
	Shell string `json:"shell"`
}

// TransferResult is the capability reference handed back by
// upload_file/download_file: the client redeems it at the out-of-band
// HTTP transfer endpoint.
type TransferResult struct {
	Ticket    string    `json:"ticket"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorMessage builds an error envelope with a stable code.
func ErrorMessage(code, message string) ServerMessage {
	return ServerMessage{Action: ActionError, Data: ErrorData{Code: code, Message: message}}
}
