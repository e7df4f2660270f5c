package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Sampler is implemented by components that recompute windowed rates
type Sampler interface {
	Sample()
}

// ScheduleSampling samples every sampler on each tick
func (s *Scheduler) ScheduleSampling(interval time.Duration, samplers ...Sampler) cron.EntryID {
	return s.Every("stats-sample", interval, func() {
		for _, sampler := range samplers {
			sampler.Sample()
		}
	})
}
