package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()
	// AddNow returns the unix time lapse seconds from now.
	AddNow(lapse int64) int64
	AfterNow(at int64) bool
	ScheduleTaskOnce(at int64, task func()) error
	ScheduleTaskEvery(interval time.Duration, task func()) error
}
