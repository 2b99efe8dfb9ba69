package service

import (
	"errors"
	"fmt"
)

var (
	ErrResolution           = errors.New("address cannot be resolved")
	ErrNotFound             = errors.New("not found")
	ErrRemoval              = errors.New("unable to remove game server")
	ErrServerNotFree        = errors.New("game server is already taken")
	ErrAllocationExhausted  = errors.New("no servers available")
	ErrControlPlane         = errors.New("control plane call failed")
	ErrStorage              = errors.New("storage error")
	ErrNotApplicable        = errors.New("not applicable")
	ErrInvalidConfiguration = errors.New("invalid vote configuration")
	ErrRoundInProgress      = errors.New("a map vote round is already in progress")
	ErrRoundClosed          = errors.New("map vote round is closed")
	ErrNotEligible          = errors.New("player is not eligible to vote")
	ErrInvalidChoice        = errors.New("map is not a candidate")
)

// Queue validation errors
var (
	ErrSlotTaken        = errors.New("slot is already taken")
	ErrNoSuchSlot       = errors.New("no such slot")
	ErrAlreadyQueued    = errors.New("player is already in the queue")
	ErrNotQueued        = errors.New("player is not in the queue")
	ErrPlayerOffline    = errors.New("player is not connected")
	ErrRulesNotAccepted = errors.New("player has not accepted the rules")
	ErrQueueLocked      = errors.New("queue is locked")
	ErrNoActiveRound    = errors.New("no map vote in progress")
)

// storageErr wraps a driver error so callers can match ErrStorage
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
