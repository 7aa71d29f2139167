package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"Lifeline/internal/models"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/logger"
	"Lifeline/pkg/metrics"
	"Lifeline/pkg/notification"
	"Lifeline/pkg/websocket"
)

const (
	defaultListLimit = 50
	reminderAfter    = 5 * time.Minute
	// A recipient who ignored three reminders for the same alert is not
	// reminded again.
	maxRemindersPerRecipient = 3
)

// NotificationService fans a single logical notification out to the
// durable store, the live push channel and email. The store write is the
// source of truth; the other two channels are best-effort and their
// failures never surface to the caller.
type NotificationService struct {
	db     *gorm.DB
	pusher LivePusher
	mailer *notification.Mailer
	now    func() time.Time
}

func NewNotificationService(db *gorm.DB, pusher LivePusher, mailer *notification.Mailer) *NotificationService {
	return &NotificationService{
		db:     db,
		pusher: pusher,
		mailer: mailer,
		now:    time.Now,
	}
}

// Dispatch persists one Notification per recipient and then pushes each
// over the live and email channels. A recipient whose store write fails
// is logged and skipped; the remaining recipients still get theirs.
func (s *NotificationService) Dispatch(ctx context.Context, recipients []models.User, typ, title, body, relatedID string, metadata models.JSONMap) []models.Notification {
	created := make([]models.Notification, 0, len(recipients))
	for _, r := range recipients {
		n := models.Notification{
			RecipientID: r.ID,
			Type:        typ,
			Title:       title,
			Body:        body,
			RelatedID:   relatedID,
			Metadata:    metadata,
		}
		if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
			logger.Error("store notification",
				zap.String("recipient", r.ID),
				zap.String("type", typ),
				zap.Error(err))
			continue
		}
		metrics.NotificationsDispatched.WithLabelValues(metrics.ChannelStore).Inc()
		created = append(created, n)

		if s.pusher != nil && s.pusher.SendToUser(r.ID, eventFor(typ), n) {
			metrics.NotificationsDispatched.WithLabelValues(metrics.ChannelLive).Inc()
		}
		if s.mailer != nil && r.Email != "" {
			go s.email(r, typ, title, body, metadata)
		}
	}
	return created
}

// email runs off the caller's goroutine so a slow relay cannot stall a
// dispatch. The mailer already absorbs failures and records metrics.
func (s *NotificationService) email(r models.User, typ, title, body string, metadata models.JSONMap) {
	ctx := context.Background()
	if typ == models.NotificationTypeAlert {
		lat, _ := metadata["latitude"].(float64)
		lng, _ := metadata["longitude"].(float64)
		name, _ := metadata["userName"].(string)
		msg, _ := metadata["message"].(string)
		if s.mailer.SendEmergencyAlert(ctx, r.Email, name, msg, lat, lng, s.now()) != nil {
			metrics.NotificationsDispatched.WithLabelValues(metrics.ChannelEmail).Inc()
		}
		return
	}
	if s.mailer.Send(ctx, r.Email, title, body, "") != nil {
		metrics.NotificationsDispatched.WithLabelValues(metrics.ChannelEmail).Inc()
	}
}

func eventFor(typ string) string {
	switch typ {
	case models.NotificationTypeAlert:
		return websocket.EventSOSAlert
	case models.NotificationTypeReminder:
		return websocket.EventReminder
	case models.NotificationTypeReadReceiptAck:
		return websocket.EventSOSReadReceipt
	default:
		return typ
	}
}

// ListForRecipient returns the recipient's notifications newest first.
func (s *NotificationService) ListForRecipient(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var list []models.Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return list, nil
}

// MarkRead marks one notification read on behalf of its recipient. Marking
// an already-read notification is a no-op that keeps the original ReadAt.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, requesterID string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", notificationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("notification")
		}
		return nil, errors.Wrap(err, "find notification")
	}
	if n.RecipientID != requesterID {
		return nil, errors.Forbidden("notification belongs to another recipient")
	}
	if n.IsRead {
		return &n, nil
	}
	readAt := s.now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", n.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "mark read")
	}
	if res.RowsAffected == 1 {
		n.IsRead = true
		n.ReadAt = &readAt
	}
	return &n, nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": s.now()})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "mark all read")
	}
	return res.RowsAffected, nil
}

// Acknowledge marks the responder's alert notification for the given
// alert as read and notifies the alert's creator with a read receipt.
// Anything other than exactly one matching unread notification makes the
// whole call a silent no-op.
func (s *NotificationService) Acknowledge(ctx context.Context, alertID, responderID string) error {
	var matches []models.Notification
	err := s.db.WithContext(ctx).
		Where("recipient_id = ? AND related_id = ? AND type = ? AND is_read = ?",
			responderID, alertID, models.NotificationTypeAlert, false).
		Find(&matches).Error
	if err != nil {
		return errors.Wrap(err, "find alert notification")
	}
	if len(matches) != 1 {
		return nil
	}

	readAt := s.now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", matches[0].ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt})
	if res.Error != nil {
		return errors.Wrap(res.Error, "acknowledge notification")
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var sos models.SOS
	if err := s.db.WithContext(ctx).First(&sos, "id = ?", alertID).Error; err != nil {
		return nil
	}
	var responder models.User
	if err := s.db.WithContext(ctx).First(&responder, "id = ?", responderID).Error; err != nil {
		return nil
	}
	if s.pusher != nil {
		s.pusher.SendToUser(sos.UserID, websocket.EventSOSReadReceipt, map[string]interface{}{
			"sosId": alertID,
			"volunteer": map[string]interface{}{
				"id":   responder.ID,
				"name": responder.Name,
			},
			"readAt": readAt,
		})
	}
	return nil
}

// ReminderSweep re-notifies recipients who still have an unread alert
// notification for an unresolved alert older than the grace window.
// Returns the number of reminders issued.
func (s *NotificationService) ReminderSweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-reminderAfter)
	var stale []models.SOS
	err := s.db.WithContext(ctx).
		Where("is_resolved = ? AND created_at < ?", false, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, errors.Wrap(err, "find stale alerts")
	}

	sent := 0
	for _, sos := range stale {
		var unread []models.Notification
		err := s.db.WithContext(ctx).
			Where("related_id = ? AND type = ? AND is_read = ?",
				sos.ID, models.NotificationTypeAlert, false).
			Find(&unread).Error
		if err != nil {
			logger.Error("sweep alert", zap.String("sos", sos.ID), zap.Error(err))
			continue
		}
		for _, n := range unread {
			var sentBefore int64
			err := s.db.WithContext(ctx).Model(&models.Notification{}).
				Where("recipient_id = ? AND related_id = ? AND type = ?",
					n.RecipientID, sos.ID, models.NotificationTypeReminder).
				Count(&sentBefore).Error
			if err != nil || sentBefore >= maxRemindersPerRecipient {
				continue
			}
			var recipient models.User
			if err := s.db.WithContext(ctx).First(&recipient, "id = ?", n.RecipientID).Error; err != nil {
				continue
			}
			s.Dispatch(ctx, []models.User{recipient},
				models.NotificationTypeReminder,
				"Action Required: SOS Alert",
				"Reminder: someone still needs your help. Please respond to the pending SOS alert.",
				sos.ID, nil)
			metrics.RemindersSent.Inc()
			sent++
		}
	}
	return sent, nil
}
