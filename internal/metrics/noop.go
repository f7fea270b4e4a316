package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// LoginAttempt is a no-op.
func (n *NoopCollector) LoginAttempt(success bool) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(command string) {}

// MatchStarted is a no-op.
func (n *NoopCollector) MatchStarted() {}

// MatchFinished is a no-op.
func (n *NoopCollector) MatchFinished(outcome string) {}

// TranslatorRequest is a no-op.
func (n *NoopCollector) TranslatorRequest(success bool, durationSeconds float64) {}
