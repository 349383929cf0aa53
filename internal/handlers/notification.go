package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hms-sync/internal/models"
	"hms-sync/internal/notifications"
	"hms-sync/internal/session"
	"hms-sync/internal/telemetry"
)

const maxUploadMemory = 16 << 20

// NotificationHandler exposes the notification feed.
type NotificationHandler struct {
	sessions *session.Manager
	audit    *telemetry.AuditEmitter
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(sessions *session.Manager, audit *telemetry.AuditEmitter) *NotificationHandler {
	return &NotificationHandler{sessions: sessions, audit: audit}
}

type notificationView struct {
	models.Notification
	TimeAgo string `json:"timeAgo"`
}

func viewOf(t *notifications.Tracker, n models.Notification) notificationView {
	return notificationView{Notification: n, TimeAgo: notifications.TimeAgo(t.Now(), n.CreatedAt)}
}

// List returns the notifications and the unread count.
func (h *NotificationHandler) List(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	list := s.Notifications.List()
	views := make([]notificationView, 0, len(list))
	for _, n := range list {
		views = append(views, viewOf(s.Notifications, n))
	}
	c.JSON(http.StatusOK, gin.H{"notifications": views, "unread": s.Notifications.UnreadCount()})
}

// Details returns one notification with its full record.
func (h *NotificationHandler) Details(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	n, err := s.Notifications.Details(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": viewOf(s.Notifications, n)})
}

// MarkRead flags one notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := s.Notifications.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", telemetry.ActionNotificationRead, "notification "+id+" read", actorFromContext(c))
	c.JSON(http.StatusOK, gin.H{"unread": s.Notifications.UnreadCount()})
}

// Send creates a notification. Multipart requests may attach images under
// the "images" field.
func (h *NotificationHandler) Send(c *gin.Context) {
	s, ok := sessionOf(c, h.sessions)
	if !ok {
		return
	}

	var (
		req         models.NewNotification
		attachments []notifications.Attachment
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
			return
		}
		req = models.NewNotification{
			Title:          c.PostForm("title"),
			Body:           c.PostForm("message"),
			PatientID:      c.PostForm("patient_ID"),
			ReceptionistID: c.PostForm("receptionist_ID"),
			DoctorID:       c.PostForm("doctor_ID"),
		}
		files, closeAll, err := openFiles(form.File["images"])
		defer closeAll()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
			return
		}
		attachments = files
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.Notifications.Send(c.Request.Context(), req, attachments)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", telemetry.ActionNotificationSent, "notification sent to "+req.DoctorID, actorFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"notification": created})
}

func openFiles(headers []*multipart.FileHeader) ([]notifications.Attachment, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	out := make([]notifications.Attachment, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, errors.Join(errors.New(fh.Filename), err)
		}
		opened = append(opened, f)
		out = append(out, notifications.Attachment{Name: fh.Filename, Reader: f})
	}
	return out, closeAll, nil
}
