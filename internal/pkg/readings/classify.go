package readings

//Thresholds on the vertical (y) accelerometer axis. The values are unit-less and
//consumed exactly as the agent reports them.
type Thresholds struct {
	Bump    float64
	Pothole float64
}

//DefaultThresholds are the thresholds used by the agents in the field
var DefaultThresholds = Thresholds{Bump: 3000, Pothole: -2000}

//Classifier maps raw readings to road states
type Classifier struct {
	thresholds Thresholds
}

//NewClassifier returns a classifier using the provided thresholds
func NewClassifier(thresholds Thresholds) Classifier {
	return Classifier{thresholds: thresholds}
}

//RoadStateOf returns the road state for a single reading. Both thresholds are exclusive.
func (c Classifier) RoadStateOf(reading RawReading) RoadState {
	y := reading.Accelerometer.Y

	if y > c.thresholds.Bump {
		return Bump
	} else if y < c.thresholds.Pothole {
		return Pothole
	}

	return Smooth
}

//Classify labels the reading with its road state
func (c Classifier) Classify(reading RawReading) ClassifiedReading {
	return ClassifiedReading{RoadState: c.RoadStateOf(reading), Reading: reading}
}
