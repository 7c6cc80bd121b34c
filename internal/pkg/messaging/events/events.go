package events

import "encoding/json"

//ProcessedAgentDataCreated is an event that notifies that a batch of classified readings has been stored.
//Records holds the stored records as a JSON array, in commit order.
type ProcessedAgentDataCreated struct {
	Records json.RawMessage `json:"records"`
}

//TopicName returns the routing key this event is published with
func (evt *ProcessedAgentDataCreated) TopicName() string {
	return "events-processedagentdatacreated"
}

//ContentType returns the content type that this event will be sent as
func (evt *ProcessedAgentDataCreated) ContentType() string {
	return "application/json"
}
