package main

import "time"

const version = "1.0.0"

// Output formats
const (
	formatText  = "text"
	formatJSONL = "jsonl"
	formatNone  = "none"
)

// Live feed defaults
const (
	defaultFeedPath         = "/ws"
	defaultFeedSendBuf      = 32  // per-client outbound queue (frames)
	defaultFeedBroadcastBuf = 128 // hub inbound queue (frames)
	defaultFeedLingerMS     = 500 // keep the feed up after the stream ends (ms)

	// feedCoalesceWindow is the maximum time during which position updates are
	// merged (latest-wins per category) before being broadcast.
	feedCoalesceWindow = 50 * time.Millisecond

	// feedQueueDepth is the number of annotations buffered between the decoder
	// and the broadcaster.
	feedQueueDepth = 1024
)

// stdioPath selects stdin for input and stdout for output.
const stdioPath = "-"
