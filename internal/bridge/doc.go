// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge connects a host loop to a remote-control session that lives
// on its own goroutine.
//
// Three goroutines make up a running bridge:
//
//   - the session context started by [Bootstrap], which builds the session
//     and then drives the remote's background task;
//   - the dispatcher, the only code that touches the remote. It pops
//     commands from an unbounded FIFO and runs each to completion before the
//     next, so commands never interleave;
//   - the forwarder, which encodes every player event and hands it to the
//     host loop in emission order.
//
// Commands carry a [host.Deferred]; it is settled exactly once, by the work
// itself, by a panic (rejected with *[CommandError]) or by the optional
// command timeout. A panicking command never stops the dispatcher.
//
// [Handle.Close] enqueues a shutdown marker behind every pending command and
// closes the channel in one step, so Submit fails fast with
// [ErrBridgeClosed] afterwards. If the remote task ends on its own the
// bridge shuts itself down the same way.
package bridge
