package dragonfly

import "time"

type User struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
}

const EmergencyStatusDispatched = "dispatched"

type EmergencyLog struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Location           string    `json:"location"`
	Incident           string    `json:"incident"`
	VictimCount        string    `json:"victim_count"`
	UserReportedStatus string    `json:"user_reported_status"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

type ConversationLog struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	UserMessage       string    `json:"user_message"`
	AssistantReply    string    `json:"assistant_reply"`
	DispatchTriggered bool      `json:"dispatch_triggered"`
	CreatedAt         time.Time `json:"created_at"`
}
