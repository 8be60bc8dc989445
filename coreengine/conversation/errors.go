package conversation

import (
	"errors"
)

// ErrBusy is returned by ProcessQuery when the coordinator instance is
// already driving a conversation. Instances are single-flight; run
// concurrent conversations on separate instances.
var ErrBusy = errors.New("conversation already in progress")
