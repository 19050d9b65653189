package domain

// Event is a synthetic usage record in the shape the metering API ingests.
// Properties carry scalar values only (numbers and strings).
type Event struct {
	EventID            string         `json:"event_id"`
	EventName          string         `json:"event_name"`
	ExternalCustomerID string         `json:"external_customer_id"`
	Source             string         `json:"source"`
	Properties         map[string]any `json:"properties"`
}
