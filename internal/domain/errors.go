package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session is attached for an identity.
	ErrSessionNotFound = errors.New("session not found for identity")
	// ErrModuleNotFound indicates a module id outside the catalog.
	ErrModuleNotFound = errors.New("module not found")
	// ErrModuleLocked indicates an attempt to start a module that has not been unlocked.
	ErrModuleLocked = errors.New("module is locked")
	// ErrAuthRequired indicates a guest tried to start a module gated behind sign-up.
	ErrAuthRequired = errors.New("authentication required for this module")
	// ErrNoActiveModule indicates a transition that needs an in-progress attempt.
	ErrNoActiveModule = errors.New("no module attempt in progress")
	// ErrPowerUpExhausted indicates the requested power-up has no uses left.
	ErrPowerUpExhausted = errors.New("power-up exhausted")
	// ErrSnapshotNotFound is returned by stores when no snapshot exists for an identity.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
