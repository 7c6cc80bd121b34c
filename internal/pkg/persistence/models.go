package persistence

import (
	"time"

	"gorm.io/gorm"
)

//ProcessedAgentData persists a classified agent reading flattened into columns so that
//it can be queried without joins
type ProcessedAgentData struct {
	gorm.Model
	RoadState string `gorm:"index"`
	X         float64
	Y         float64
	Z         float64
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

//TableName overrides the pluralized default table name
func (ProcessedAgentData) TableName() string {
	return "processed_agent_data"
}
