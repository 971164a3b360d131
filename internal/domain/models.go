// Package domain defines the core data types shared across the gateway,
// store, access-control, and port-monitor layers.
package domain

import "time"

// Principal is an authenticated user identity.
type Principal struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// SessionToken is a bearer credential resolving to a [Principal].
// Only the hash of the token material is ever stored.
type SessionToken struct {
	TokenHash   string
	PrincipalID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// Endpoint is a registered relay target: a private host whose reverse
// tunnel is expected on RelayPort.
type Endpoint struct {
	ID          string
	PrincipalID string // owner
	Name        string // globally unique, human friendly
	PublicKey   string
	RelayPort   int // unique across all endpoints
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EndpointUsername is a remote login name valid for an endpoint. An
// endpoint may expose several remote accounts.
type EndpointUsername struct {
	ID         string
	EndpointID string
	Username   string
	CreatedAt  time.Time
}

// ShareGrant is an authorization edge giving a non-owner principal a
// permission level on an endpoint. At most one grant exists per
// (endpoint, grantee), and a grant never targets the endpoint's owner.
type ShareGrant struct {
	ID         string
	EndpointID string
	GrantedBy  string
	GranteeID  string
	Level      PermissionLevel
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TransferTicket is a single-use capability for the out-of-band HTTP
// file transfer endpoint, minted by a file-manager session.
type TransferTicket struct {
	Ticket      string
	EndpointID  string
	PrincipalID string
	Username    string
	Path        string
	Op          string
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// Transfer ticket operations.
const (
	TransferOpUpload   = "upload"
	TransferOpDownload = "download"
)

// PortSnapshot maps relay port to "currently listening". It is replaced
// atomically on each reconciliation pass and is the single source of
// truth for whether an endpoint's tunnel is up.
type PortSnapshot map[int]bool

// Clone returns an independent copy of the snapshot.
func (s PortSnapshot) Clone() PortSnapshot {
	out := make(PortSnapshot, len(s))
	for port, up := range s {
		out[port] = up
	}
	return out
}
