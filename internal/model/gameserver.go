package model

import "time"

// GameServer is a registered dedicated server that matches can be launched on.
// IsOnline and IsFree are independent: the health monitor owns the first,
// take/release own the second.
type GameServer struct {
	ID                  string    `json:"id" bson:"_id,omitempty"`
	Name                string    `json:"name" bson:"name"`
	Address             string    `json:"address" bson:"address"`
	Port                string    `json:"port" bson:"port"`
	RconPassword        string    `json:"-" bson:"rconPassword"`
	ResolvedIPAddresses []string  `json:"resolvedIpAddresses" bson:"resolvedIpAddresses"`
	IsOnline            bool      `json:"isOnline" bson:"isOnline"`
	IsFree              bool      `json:"isFree" bson:"isFree"`
	VoiceChannelName    string    `json:"voiceChannelName,omitempty" bson:"voiceChannelName,omitempty"`
	CreatedAt           time.Time `json:"createdAt" bson:"createdAt"`
}

// Allocatable reports whether a new match may be placed on the server.
func (s *GameServer) Allocatable() bool {
	return s.IsOnline && s.IsFree
}

// HasEndpoint reports whether ip:port belongs to this server.
func (s *GameServer) HasEndpoint(ip string, port string) bool {
	if s.Port != port {
		return false
	}
	for _, addr := range s.ResolvedIPAddresses {
		if addr == ip {
			return true
		}
	}
	return false
}

// RegisterGameServerRequest is the input for adding a server to the pool
type RegisterGameServerRequest struct {
	Name             string `json:"name" validate:"required,max=64"`
	Address          string `json:"address" validate:"required,hostname_rfc1123|ip"`
	Port             string `json:"port" validate:"required,numeric"`
	RconPassword     string `json:"rconPassword" validate:"required"`
	VoiceChannelName string `json:"voiceChannelName,omitempty" validate:"omitempty,numeric"`
}
