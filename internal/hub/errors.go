package hub

import "errors"

// ErrBroadcastFull is returned when the broadcast queue is saturated and
// an event was dropped rather than blocking the sender.
var ErrBroadcastFull = errors.New("hub: broadcast queue full")
