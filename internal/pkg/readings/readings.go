package readings

import (
	"fmt"
	"strings"
	"time"
)

//Accelerometer holds a single three axis accelerometer sample as reported by the agent
type Accelerometer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

//GPS holds a WGS84 coordinate in degrees
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

//RawReading is an accelerometer and gps sample taken at a single point in time
type RawReading struct {
	Accelerometer Accelerometer
	GPS           GPS
	Timestamp     time.Time
}

//ValidationError is returned when a reading can not be constructed from its input
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Layouts accepted for reading timestamps. Layouts without a zone are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

//ParseTimestamp parses an ISO 8601 timestamp and normalizes it to UTC
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)

	if trimmed != "" {
		for _, layout := range timestampLayouts {
			ts, err := time.Parse(layout, trimmed)
			if err == nil {
				return ts.UTC(), nil
			}
		}
	}

	return time.Time{}, &ValidationError{
		Field:  "timestamp",
		Value:  value,
		Reason: "expected ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)",
	}
}

//NewRawReading validates the timestamp and returns a new reading
func NewRawReading(acc Accelerometer, gps GPS, timestamp string) (RawReading, error) {
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return RawReading{}, err
	}

	return RawReading{Accelerometer: acc, GPS: gps, Timestamp: ts}, nil
}

//RoadState is the classified condition of the road surface at a reading
type RoadState string

const (
	//Smooth is a road without noticeable vertical perturbation
	Smooth RoadState = "smooth"
	//Bump is an upward perturbation, such as a speed bump
	Bump RoadState = "bump"
	//Pothole is a downward perturbation
	Pothole RoadState = "pothole"
)

//ParseRoadState returns the RoadState matching the provided label
func ParseRoadState(label string) (RoadState, error) {
	switch state := RoadState(strings.ToLower(strings.TrimSpace(label))); state {
	case Smooth, Bump, Pothole:
		return state, nil
	}

	return "", &ValidationError{Field: "road_state", Value: label, Reason: "must be one of smooth, bump or pothole"}
}

//ClassifiedReading ties a RawReading to the road state it was classified as
type ClassifiedReading struct {
	RoadState RoadState
	Reading   RawReading
}

//NewClassifiedReading creates a ClassifiedReading from an already known road state label
func NewClassifiedReading(label string, reading RawReading) (ClassifiedReading, error) {
	state, err := ParseRoadState(label)
	if err != nil {
		return ClassifiedReading{}, err
	}

	return ClassifiedReading{RoadState: state, Reading: reading}, nil
}

//StoredRecord is a ClassifiedReading that has been committed and assigned an identity
type StoredRecord struct {
	ID        uint      `json:"id"`
	RoadState RoadState `json:"road_state"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}
