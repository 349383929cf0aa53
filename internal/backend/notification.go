package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"hms-sync/internal/models"
)

// DoctorNotifications returns the notification history for userID in server
// order.
func (c *Client) DoctorNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var raw listEnvelope
	if err := c.do(ctx, http.MethodGet, "/notification/doctor-notifications/:userId", "/notification/doctor-notifications/"+escape(userID), nil, &raw); err != nil {
		return nil, err
	}
	return models.DecodeNotifications(raw), nil
}

// UnreadNotifications returns the unread notifications for userID.
func (c *Client) UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var raw listEnvelope
	if err := c.do(ctx, http.MethodGet, "/notification/get-unread-notifications/:userId", "/notification/get-unread-notifications/"+escape(userID), nil, &raw); err != nil {
		return nil, err
	}
	return models.DecodeNotifications(raw), nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/notification/mark-as-read/:id", "/notification/mark-as-read/"+escape(id), nil, nil)
}

// SendNotification creates a notification and returns the stored record.
func (c *Client) SendNotification(ctx context.Context, n models.NewNotification) (models.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/notification/send-notification", "/notification/send-notification", n, &raw); err != nil {
		return models.Notification{}, err
	}
	return decodeNotificationBody(raw)
}

// NotificationData returns the full record behind a notification.
func (c *Client) NotificationData(ctx context.Context, id string) (models.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/notification/notificationData/:id", "/notification/notificationData/"+escape(id), nil, &raw); err != nil {
		return models.Notification{}, err
	}
	return decodeNotificationBody(raw)
}

func decodeNotificationBody(raw json.RawMessage) (models.Notification, error) {
	var wrapped struct {
		Notification json.RawMessage `json:"notification"`
		Data         json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if len(wrapped.Notification) > 0 && wrapped.Notification[0] == '{' {
			raw = wrapped.Notification
		} else if len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
			raw = wrapped.Data
		}
	}
	return models.DecodeNotification(raw)
}
