package generator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/usagelab/metering-loadgen/internal/domain"
)

var (
	eventNames = []string{"gpu_time"}
	sources    = []string{"web", "mobile"}
)

// loadTestCustomer is the fixed external customer all synthetic usage is
// attributed to, so aggregates can be validated against a single subject.
const loadTestCustomer = "cus_loadtest_5"

// Synthesize derives one event from its index. Every field except the event
// ID is a pure function of the index, so regenerating a sequence is
// idempotent. Safe to call concurrently.
func Synthesize(index int) *domain.Event {
	return &domain.Event{
		EventID:            uuid.NewString(),
		EventName:          eventNames[index%len(eventNames)],
		ExternalCustomerID: loadTestCustomer,
		Source:             sources[index%len(sources)],
		Properties: map[string]any{
			"bytes_transferred": 100 + (index % 1000),
			"duration_ms":       50 + (index % 200),
			"status_code":       200 + ((index % 3) * 100),
			"test_group":        fmt.Sprintf("group_%d", index%10),
		},
	}
}

// Batch synthesizes the events for indices [start, start+size).
func Batch(start, size int) []*domain.Event {
	events := make([]*domain.Event, 0, size)
	for i := start; i < start+size; i++ {
		events = append(events, Synthesize(i))
	}
	return events
}
