package metrics

import "time"

// Nop discards every observation.
type Nop struct{}

func (Nop) SessionOpened() {}

func (Nop) SessionClosed() {}

func (Nop) CommandHandled(string, string, time.Duration) {}
