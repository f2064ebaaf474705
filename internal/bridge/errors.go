// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrBridgeClosed is returned by Submit and Close once the bridge is shut
	// down or its session context has gone away.
	ErrBridgeClosed = errors.New("bridge: closed")

	// ErrCommandTimeout rejects a command that did not settle within the
	// configured command timeout.
	ErrCommandTimeout = errors.New("bridge: command timed out")

	// ErrReadyTimeout is the cause of a BootstrapError when the session did
	// not signal readiness in time.
	ErrReadyTimeout = errors.New("bridge: session not ready before timeout")

	// ErrInvalidCommand is returned for a nil deferred or nil work.
	ErrInvalidCommand = errors.New("bridge: invalid command")
)

// Bootstrap stages, reported in BootstrapError.Stage.
const (
	StageConfig       = "config"
	StageAuthenticate = "authenticate"
	StagePlayer       = "player"
	StageRemote       = "remote"
	StageEvents       = "events"
	StageReady        = "ready"
)

// BootstrapError reports that no usable bridge could be built. Callers must
// not retry automatically without fresh credentials.
type BootstrapError struct {
	Stage string
	Err   error
	// Panic holds the recovered value when the session context panicked
	// before signalling readiness.
	Panic any
}

func (e *BootstrapError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("bridge bootstrap failed at %s: panic: %v", e.Stage, e.Panic)
	}
	return fmt.Sprintf("bridge bootstrap failed at %s: %v", e.Stage, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// CommandError rejects a single command's deferred. It never affects other
// commands.
type CommandError struct {
	CommandID string
	Err       error
	Panic     any
}

func (e *CommandError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("command %s panicked: %v", e.CommandID, e.Panic)
	}
	return fmt.Sprintf("command %s failed: %v", e.CommandID, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsPanic reports whether err is a CommandError caused by a panic.
func IsPanic(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Panic != nil
}
