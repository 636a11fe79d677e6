package sim

import (
	"crowdmarch/server/internal/telemetry"
	"crowdmarch/server/logging"
)

// Deps carries shared infrastructure dependencies required by the
// simulation engine.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
}

// normalized fills nil dependencies with no-op implementations so engine
// code never branches on their presence.
func (d Deps) normalized() Deps {
	if d.Logger == nil {
		d.Logger = telemetry.WrapLogger(nil)
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.WrapMetrics(nil)
	}
	if d.Clock == nil {
		d.Clock = logging.SystemClock{}
	}
	if d.Publisher == nil {
		d.Publisher = logging.NopPublisher()
	}
	return d
}
