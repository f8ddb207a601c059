package dispatch

import "time"

// TimeService answers time queries. The clock is injectable for tests.
type TimeService struct {
	now func() time.Time
}

// NewTimeService creates a TimeService on the wall clock.
func NewTimeService() *TimeService {
	return &TimeService{now: time.Now}
}

// Now returns the current time.
func (s *TimeService) Now() time.Time { return s.now() }

// Report formats the current time for the user.
func (s *TimeService) Report() string {
	return "It is " + s.now().Format("3:04 PM on Monday, January 2, 2006") + "."
}
