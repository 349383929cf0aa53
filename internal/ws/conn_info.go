package ws

import "time"

// ConnInfo identifies one browser tab attached to a staff member's session.
type ConnInfo struct {
	ConnID      string
	UserID      string
	HospitalID  string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// logFields returns the key/value pairs every connection log line carries.
func (i ConnInfo) logFields(extra ...interface{}) []interface{} {
	fields := []interface{}{
		"user_id", i.UserID,
		"hospital_id", i.HospitalID,
		"conn_id", i.ConnID,
	}
	return append(fields, extra...)
}
