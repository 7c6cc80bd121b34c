package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invisy/PitDetector/internal/pkg/messaging/commands"
	"github.com/invisy/PitDetector/internal/pkg/readings"
)

//ValidationError rejects a whole batch because one of its elements was malformed
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid batch: %s", e.Err.Error())
	}
	return fmt.Sprintf("invalid batch element %d: %s", e.Index, e.Err.Error())
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

//DecodeBatch decodes a message body holding either a JSON array of agent data or a single sample
func DecodeBatch(body []byte) ([]commands.AgentData, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		sample := commands.AgentData{}
		if err := json.Unmarshal(trimmed, &sample); err != nil {
			return nil, &ValidationError{Index: -1, Err: err}
		}
		return []commands.AgentData{sample}, nil
	}

	batch := []commands.AgentData{}
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, &ValidationError{Index: -1, Err: err}
	}

	return batch, nil
}

func parseAgentData(data *commands.AgentData) (readings.RawReading, error) {
	if data == nil {
		return readings.RawReading{}, &readings.ValidationError{Field: "agent_data", Reason: "is required"}
	}
	if data.Accelerometer == nil {
		return readings.RawReading{}, &readings.ValidationError{Field: "accelerometer", Reason: "is required"}
	}
	if data.GPS == nil {
		return readings.RawReading{}, &readings.ValidationError{Field: "gps", Reason: "is required"}
	}

	return readings.NewRawReading(
		readings.Accelerometer{X: data.Accelerometer.X, Y: data.Accelerometer.Y, Z: data.Accelerometer.Z},
		readings.GPS{Latitude: data.GPS.Latitude, Longitude: data.GPS.Longitude},
		data.Timestamp,
	)
}

//ParseAgentData validates every sample of the batch and fails on the first malformed one
func ParseAgentData(batch []commands.AgentData) ([]readings.RawReading, error) {
	result := make([]readings.RawReading, 0, len(batch))

	for idx := range batch {
		reading, err := parseAgentData(&batch[idx])
		if err != nil {
			return nil, &ValidationError{Index: idx, Err: err}
		}
		result = append(result, reading)
	}

	return result, nil
}

//ParseProcessedAgentData validates a batch of pre-classified samples. Samples without a road
//state are classified with the provided classifier.
func ParseProcessedAgentData(batch []commands.ProcessedAgentData, classifier readings.Classifier) ([]readings.ClassifiedReading, error) {
	result := make([]readings.ClassifiedReading, 0, len(batch))

	for idx := range batch {
		cr, err := parseProcessedAgentData(&batch[idx], classifier)
		if err != nil {
			return nil, &ValidationError{Index: idx, Err: err}
		}
		result = append(result, cr)
	}

	return result, nil
}

func parseProcessedAgentData(data *commands.ProcessedAgentData, classifier readings.Classifier) (readings.ClassifiedReading, error) {
	reading, err := parseAgentData(data.AgentData)
	if err != nil {
		return readings.ClassifiedReading{}, err
	}

	if data.RoadState == "" {
		return classifier.Classify(reading), nil
	}

	return readings.NewClassifiedReading(data.RoadState, reading)
}

//ParseProcessedAgentDataItem validates a single pre-classified sample, as used for updates
func ParseProcessedAgentDataItem(data commands.ProcessedAgentData, classifier readings.Classifier) (readings.ClassifiedReading, error) {
	cr, err := parseProcessedAgentData(&data, classifier)
	if err != nil {
		return readings.ClassifiedReading{}, &ValidationError{Index: -1, Err: err}
	}
	return cr, nil
}
