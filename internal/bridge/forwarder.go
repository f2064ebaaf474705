// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"github.com/ManuGH/connectbridge/internal/event"
	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/metrics"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/rs/zerolog"
)

// forwarder drains the player's event stream into the host loop, one record
// per event, in emission order.
type forwarder struct {
	stream spirc.EventStream
	loop   *host.Loop
	logger zerolog.Logger
}

func (f *forwarder) run() {
	var forwarded, dropped int
	for {
		ev, ok := f.stream.Recv()
		if !ok {
			f.logger.Debug().
				Str(xglog.FieldEvent, "bridge.stream_ended").
				Int("forwarded", forwarded).
				Int("dropped", dropped).
				Msg("event stream ended")
			return
		}
		rec := event.Encode(ev)
		if rec == nil {
			continue
		}
		// Keep draining after the loop is gone so the engine never blocks on us.
		if err := f.loop.Emit(rec); err != nil {
			dropped++
			continue
		}
		forwarded++
		metrics.IncEventForwarded(rec.Tag())
	}
}
