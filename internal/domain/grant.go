package domain

import "time"

// Capabilities is what a grant allows its holder to do inside a room.
type Capabilities struct {
	Join              bool `json:"roomJoin"`
	Publish           bool `json:"canPublish"`
	PublishData       bool `json:"canPublishData"`
	Subscribe         bool `json:"canSubscribe"`
	UpdateOwnMetadata bool `json:"canUpdateOwnMetadata"`
}

// CapabilitiesFor is the only place a capability set is derived. Only
// Publish depends on the role.
func CapabilitiesFor(role Role) Capabilities {
	return Capabilities{
		Join:              true,
		Publish:           role == RoleHost,
		PublishData:       true,
		Subscribe:         true,
		UpdateOwnMetadata: true,
	}
}

// Grant binds an identity to a room with a capability set until ExpiresAt.
type Grant struct {
	Identity     Identity
	Room         RoomName
	Capabilities Capabilities
	ExpiresAt    time.Time
}
