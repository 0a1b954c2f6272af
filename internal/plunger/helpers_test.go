package plunger

import (
	"time"

	"github.com/banshee-data/plunger.sense/internal/timeutil"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testMicros() *timeutil.MicroClock {
	return timeutil.NewMicroClock(timeutil.NewMockClock(testEpoch))
}
