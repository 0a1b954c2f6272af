package api

import (
	"github.com/banshee-data/plunger.sense/internal/monitoring"
)

func setTestLogger(f func(string, ...interface{})) func() {
	prev := monitoring.Logf
	monitoring.SetLogger(f)
	return func() { monitoring.SetLogger(prev) }
}
