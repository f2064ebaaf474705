// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"time"

	"github.com/ManuGH/connectbridge/internal/host"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/google/uuid"
)

// Kind discriminates commands on the channel.
type Kind uint8

const (
	KindInvoke Kind = iota
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindInvoke:
		return "invoke"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Work runs on the dispatcher with exclusive access to the remote. It must
// settle d exactly once, either before returning or later from another
// context (e.g. a loop callback). Work should be short; anything slow
// belongs in a goroutine that settles d when done.
type Work func(ctx context.Context, remote spirc.Remote, loop *host.Loop, d *host.Deferred)

// Command is one unit on the command channel.
type Command struct {
	ID       string
	Kind     Kind
	Work     Work
	Deferred *host.Deferred
	Reason   string

	enqueued time.Time
}

func invokeCommand(d *host.Deferred, work Work) Command {
	return Command{
		ID:       uuid.NewString(),
		Kind:     KindInvoke,
		Work:     work,
		Deferred: d,
		enqueued: time.Now(),
	}
}

func shutdownCommand(reason string) Command {
	return Command{
		ID:       uuid.NewString(),
		Kind:     KindShutdown,
		Reason:   reason,
		enqueued: time.Now(),
	}
}
