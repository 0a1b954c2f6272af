package plunger

// Null is the sensor used when no plunger is fitted. It never has a reading.
type Null struct{}

func (Null) Init() error           { return nil }
func (Null) Read() (Reading, bool) { return Reading{}, false }
func (Null) AvgScanTime() uint32   { return 0 }
