package proto

// PollSession is returned by the broker when a long-poll session is opened.
type PollSession struct {
	Session string `json:"session"`
}

// PollBatch carries the frames queued for a long-poll session since the last receive.
// Each entry is one encoded frame.
type PollBatch struct {
	Frames []string `json:"frames"`
}
