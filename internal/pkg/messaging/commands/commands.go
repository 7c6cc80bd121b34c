package commands

const (
	//StoreAgentDataContentType is the content type for batches of raw agent data
	StoreAgentDataContentType = "application/vnd-pitdetector-storeagentdata+json"
)

//Accelerometer is the wire representation of an accelerometer sample
type Accelerometer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

//GPS is the wire representation of a gps sample
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

//AgentData is a single sample as published by an agent. The nested objects are pointers
//so that a missing object can be told apart from a zero reading.
type AgentData struct {
	Accelerometer *Accelerometer `json:"accelerometer"`
	GPS           *GPS           `json:"gps"`
	Timestamp     string         `json:"timestamp"`
}

//ContentType returns the content type that a batch of agent data is sent as
func (ad *AgentData) ContentType() string {
	return StoreAgentDataContentType
}

//ProcessedAgentData is an agent sample that has already been assigned a road state.
//An empty road state asks the receiver to classify the sample.
type ProcessedAgentData struct {
	RoadState string     `json:"road_state"`
	AgentData *AgentData `json:"agent_data"`
}
