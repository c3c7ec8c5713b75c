package notify

import "errors"

var errNoDirectory = errors.New("no directory configured")

// ErrSlowConsumer is returned when a socket's send buffer is full.
var ErrSlowConsumer = errors.New("websocket client too slow")
