package observability

// EventEnvelope is the body of a gateway lifecycle event on the bus.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	UserID     string      `json:"user_id,omitempty"`
	HospitalID string      `json:"hospital_id,omitempty"`
	Payload    interface{} `json:"payload"`
}

// BuildHeaders returns the correlation headers for an event. Empty values
// are left out.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" && traceID != zeroTraceID {
		headers["trace_id"] = traceID
	}
	return headers
}

const zeroTraceID = "00000000000000000000000000000000"
