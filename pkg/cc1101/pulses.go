package cc1101

import (
	"context"
	"math"
	"time"
)

// WatchPulses times GDO0 edges and passes each edge-to-edge width in
// microseconds to sink until ctx is done. The radio must be in RX. A quiet
// line for longer than EdgeTimeout ends the pulse train; the next edge starts
// a new one without reporting the gap.
func (r *Radio) WatchPulses(ctx context.Context, sink func(width uint32)) error {
	var last time.Time
	var pulses int

	defer func() {
		r.log.WithField("pulses", pulses).Debug("pulse watch stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !r.gdo0.WaitForEdge(r.EdgeTimeout) {
			last = time.Time{}
			continue
		}

		now := r.now()
		if !last.IsZero() {
			us := now.Sub(last) / time.Microsecond
			if us > math.MaxUint32 {
				us = math.MaxUint32
			}
			sink(uint32(us))
			pulses++
		}
		last = now
	}
}
