package trainer

import "time"

// currentTime is the wall-clock seconds-since-epoch used to stamp
// BulkUpdate calls. It is a plain function and Trainer has no clock field,
// so the clock cannot be substituted.
func currentTime() int64 {
	return time.Now().Unix()
}
