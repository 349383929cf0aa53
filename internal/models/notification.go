package models

import (
	"encoding/json"
	"time"
)

// ReadState is the lifecycle of a notification. Unread moves to Read only;
// Pending marks an optimistic read awaiting the backend.
type ReadState string

const (
	ReadUnread  ReadState = "unread"
	ReadPending ReadState = "pending"
	ReadDone    ReadState = "read"
)

// NotAvailable is the placeholder for missing patient details.
const NotAvailable = "N/A"

// Notification is one staff notification.
type Notification struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
	Read           bool      `json:"read"`
	State          ReadState `json:"state"`
	PatientID      string    `json:"patientId"`
	ReceptionistID string    `json:"receptionistId"`
	DoctorID       string    `json:"doctorId"`
	Images         []string  `json:"images"`
	PatientName    string    `json:"patientName"`
}

// NewNotification is a notification to create through the backend.
type NewNotification struct {
	Title          string   `json:"title"`
	Body           string   `json:"message"`
	PatientID      string   `json:"patient_ID"`
	ReceptionistID string   `json:"receptionist_ID"`
	DoctorID       string   `json:"doctor_ID"`
	Images         []string `json:"images,omitempty"`
}

type wireNotification struct {
	ID           string          `json:"_id"`
	AltID        string          `json:"id"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	Message      string          `json:"message"`
	CreatedAt    string          `json:"createdAt"`
	Read         bool            `json:"read"`
	IsRead       bool            `json:"isRead"`
	Patient      Ref             `json:"patient_ID"`
	Receptionist Ref             `json:"receptionist_ID"`
	Doctor       Ref             `json:"doctor_ID"`
	Images       json.RawMessage `json:"images"`
	PatientName  string          `json:"patientName"`
}

// DecodeNotification normalizes one backend notification record.
func DecodeNotification(raw json.RawMessage) (Notification, error) {
	var w wireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return Notification{}, err
	}

	n := Notification{
		ID:             firstNonEmpty(w.ID, w.AltID),
		Title:          firstNonEmpty(w.Title, "Notification"),
		Body:           firstNonEmpty(w.Body, w.Message),
		CreatedAt:      parseTime(w.CreatedAt),
		Read:           w.Read || w.IsRead,
		PatientID:      w.Patient.ID,
		ReceptionistID: w.Receptionist.ID,
		DoctorID:       w.Doctor.ID,
		Images:         decodeImages(w.Images),
		PatientName:    firstNonEmpty(w.PatientName, w.Patient.Name, NotAvailable),
	}
	n.State = ReadUnread
	if n.Read {
		n.State = ReadDone
	}
	return n, nil
}

// DecodeNotifications normalizes a list, skipping malformed entries.
func DecodeNotifications(raws []json.RawMessage) []Notification {
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		n, err := DecodeNotification(raw)
		if err != nil || n.ID == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

func decodeImages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		return compact(urls)
	}
	var docs []struct {
		URL       string `json:"url"`
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal(raw, &docs); err == nil {
		urls = make([]string, 0, len(docs))
		for _, d := range docs {
			urls = append(urls, firstNonEmpty(d.SecureURL, d.URL))
		}
		return compact(urls)
	}
	return []string{}
}

func compact(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
