package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Ref is a backend reference to a user or patient. The backend sends either
// a bare id or a populated document; both decode into the same shape.
type Ref struct {
	ID       string
	Name     string
	Avatar   string
	Status   string
	LastSeen time.Time
}

// UnmarshalJSON accepts a string id, a numeric id, null, or an object.
func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = Ref{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		r.ID = id
		return nil
	case '{':
		var doc struct {
			ID        string `json:"_id"`
			AltID     string `json:"id"`
			Name      string `json:"name"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			Avatar    string `json:"avatar"`
			Status    string `json:"status"`
			LastSeen  string `json:"lastSeen"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		r.ID = firstNonEmpty(doc.ID, doc.AltID)
		r.Name = firstNonEmpty(doc.Name, strings.TrimSpace(doc.FirstName+" "+doc.LastName))
		r.Avatar = doc.Avatar
		r.Status = doc.Status
		r.LastSeen = parseTime(doc.LastSeen)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		r.ID = n.String()
		return nil
	}
}

// Empty reports whether the reference carries no id.
func (r Ref) Empty() bool {
	return r.ID == ""
}

func firstRef(refs ...Ref) Ref {
	for _, r := range refs {
		if !r.Empty() {
			return r
		}
	}
	return Ref{}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
