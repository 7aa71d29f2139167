package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Lifeline/internal/models"
	"Lifeline/pkg/cache"
	"Lifeline/pkg/constant"
	"Lifeline/pkg/errors"
	"Lifeline/pkg/logger"
	"Lifeline/pkg/metrics"
	"Lifeline/pkg/notification"
	"Lifeline/pkg/websocket"
)

const (
	respondersCacheKey = "eligible_responders"
	respondersCacheTTL = 30 * time.Second
	locationCacheSize  = 4096
)

// LocationPing is the latest relayed position of one responder on one
// alert. Only the newest ping per (alert, responder) pair is kept.
type LocationPing struct {
	SOSID       string    `json:"sosId"`
	ResponderID string    `json:"volunteerId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   time.Time `json:"timestamp"`
}

// SOSService owns the alert lifecycle: raise, accept, resolve, and the
// live location relay between accepted responders and the creator.
type SOSService struct {
	db        *gorm.DB
	notify    *NotificationService
	pusher    LivePusher
	mailer    *notification.Mailer
	cache     cache.Cache
	lastPings *lru.Cache[string, LocationPing]
	now       func() time.Time
}

func NewSOSService(db *gorm.DB, notify *NotificationService, pusher LivePusher, mailer *notification.Mailer, c cache.Cache) *SOSService {
	pings, _ := lru.New[string, LocationPing](locationCacheSize)
	return &SOSService{
		db:        db,
		notify:    notify,
		pusher:    pusher,
		mailer:    mailer,
		cache:     c,
		lastPings: pings,
		now:       time.Now,
	}
}

// Raise creates the alert and, unless silent, fans the notification out to
// every eligible responder. The alert row is durable before any channel
// work starts; channel failures cannot undo a raised alert.
func (s *SOSService) Raise(ctx context.Context, creator *models.User, message string, lat, lng float64, silent bool) (*models.SOS, error) {
	sos := &models.SOS{
		UserID:    creator.ID,
		Message:   message,
		Latitude:  lat,
		Longitude: lng,
	}
	if err := s.db.WithContext(ctx).Create(sos).Error; err != nil {
		return nil, errors.Wrap(err, "create alert")
	}
	metrics.AlertsRaised.Inc()

	if silent {
		return sos, nil
	}

	if s.mailer != nil && creator.Phone != "" {
		text := fmt.Sprintf("EMERGENCY: %s needs help! Location: https://maps.google.com/?q=%f,%f",
			creator.Name, lat, lng)
		go s.mailer.SendSMS(context.Background(), creator.Phone, creator.Carrier, text)
	}

	recipients, err := s.eligibleResponders(ctx, creator.ID)
	if err != nil {
		logger.Error("load eligible responders", zap.String("sos", sos.ID), zap.Error(err))
	}
	s.notify.Dispatch(ctx, recipients,
		models.NotificationTypeAlert,
		"Emergency SOS Alert",
		fmt.Sprintf("%s has triggered an SOS alert and needs help!", creator.Name),
		sos.ID,
		models.JSONMap{
			"latitude":  lat,
			"longitude": lng,
			"message":   message,
			"userName":  creator.Name,
		})

	if s.pusher != nil {
		s.pusher.Broadcast(websocket.EventNewSOS, map[string]interface{}{
			"sosId":     sos.ID,
			"userId":    creator.ID,
			"userName":  creator.Name,
			"message":   message,
			"latitude":  lat,
			"longitude": lng,
			"createdAt": sos.CreatedAt,
		})
	}
	return sos, nil
}

// eligibleResponders returns verified, approved responders other than the
// creator. The full set is cached briefly; the creator is filtered per
// call so the cache entry stays shared.
func (s *SOSService) eligibleResponders(ctx context.Context, excludeID string) ([]models.User, error) {
	var all []models.User
	if data, ok := s.cacheGet(ctx); ok {
		all = data
	} else {
		err := s.db.WithContext(ctx).
			Where("role = ? AND is_verified = ? AND is_approved = ?",
				constant.RoleResponder, true, true).
			Find(&all).Error
		if err != nil {
			return nil, err
		}
		s.cachePut(ctx, all)
	}

	out := all[:0:0]
	for _, u := range all {
		if u.ID != excludeID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *SOSService) cacheGet(ctx context.Context) ([]models.User, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok := s.cache.Get(ctx, respondersCacheKey)
	if !ok {
		return nil, false
	}
	var users []models.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, false
	}
	return users, true
}

func (s *SOSService) cachePut(ctx context.Context, users []models.User) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(users)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, respondersCacheKey, raw, respondersCacheTTL); err != nil {
		logger.Warn("cache responders", zap.Error(err))
	}
}

// Accept records the responder on the alert. Repeat accepts by the same
// responder are idempotent; an accept racing a resolve loses cleanly.
func (s *SOSService) Accept(ctx context.Context, alertID, responderID string) (*models.SOS, error) {
	var sos models.SOS
	if err := s.db.WithContext(ctx).First(&sos, "id = ?", alertID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("alert")
		}
		return nil, errors.Wrap(err, "find alert")
	}
	if sos.IsResolved {
		return nil, errors.AlreadyResolved(alertID)
	}

	row := models.SOSResponder{SOSID: alertID, UserID: responderID}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "record acceptance")
	}
	inserted := res.RowsAffected == 1

	// Re-read after insert: a resolve that landed in between must win,
	// and an acceptance slipped onto a resolved alert is backed out.
	if err := s.db.WithContext(ctx).First(&sos, "id = ?", alertID).Error; err != nil {
		return nil, errors.Wrap(err, "reload alert")
	}
	if sos.IsResolved {
		if inserted {
			s.db.WithContext(ctx).
				Where("sos_id = ? AND user_id = ?", alertID, responderID).
				Delete(&models.SOSResponder{})
		}
		return nil, errors.AlreadyResolved(alertID)
	}

	if inserted {
		metrics.AlertsAccepted.Inc()
		var responder models.User
		if err := s.db.WithContext(ctx).First(&responder, "id = ?", responderID).Error; err == nil && s.pusher != nil {
			s.pusher.SendToUser(sos.UserID, websocket.EventSOSAccepted, map[string]interface{}{
				"sosId": alertID,
				"volunteer": map[string]interface{}{
					"id":   responder.ID,
					"name": responder.Name,
				},
				"acceptedAt": row.CreatedAt,
			})
		}
	}

	return s.Get(ctx, alertID)
}

// Resolve flips the alert's resolution latch. Only the creator may
// resolve; a second resolve reports the alert as already resolved.
func (s *SOSService) Resolve(ctx context.Context, alertID, requesterID string) (*models.SOS, error) {
	var sos models.SOS
	if err := s.db.WithContext(ctx).First(&sos, "id = ?", alertID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("alert")
		}
		return nil, errors.Wrap(err, "find alert")
	}
	if sos.UserID != requesterID {
		return nil, errors.Forbidden("only the alert's creator may resolve it")
	}

	resolvedAt := s.now()
	res := s.db.WithContext(ctx).Model(&models.SOS{}).
		Where("id = ? AND is_resolved = ?", alertID, false).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": resolvedAt})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "resolve alert")
	}
	if res.RowsAffected == 0 {
		return nil, errors.AlreadyResolved(alertID)
	}
	metrics.AlertsResolved.Inc()

	s.purgePings(alertID)

	if s.pusher != nil {
		var responders []models.SOSResponder
		if err := s.db.WithContext(ctx).
			Where("sos_id = ?", alertID).
			Find(&responders).Error; err == nil {
			payload := map[string]interface{}{
				"sosId":      alertID,
				"resolvedAt": resolvedAt,
			}
			for _, r := range responders {
				s.pusher.SendToUser(r.UserID, websocket.EventSOSResolved, payload)
			}
		}
	}

	return s.Get(ctx, alertID)
}

// Get loads one alert with its acceptances in acceptance order.
func (s *SOSService) Get(ctx context.Context, alertID string) (*models.SOS, error) {
	var sos models.SOS
	err := s.db.WithContext(ctx).
		Preload("Responders", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&sos, "id = ?", alertID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("alert")
		}
		return nil, errors.Wrap(err, "find alert")
	}
	return &sos, nil
}

type locationUpdate struct {
	SOSID     string  `json:"sosId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"` // epoch millis; zero means now
}

// HandleLocationUpdate relays a responder's position to the alert's
// creator. Pings for unaccepted or resolved alerts are dropped, as is any
// ping not newer than the last one relayed for the same pair.
func (s *SOSService) HandleLocationUpdate(userID string, payload []byte) {
	var upd locationUpdate
	if err := json.Unmarshal(payload, &upd); err != nil || upd.SOSID == "" {
		return
	}

	ctx := context.Background()
	var sos models.SOS
	if err := s.db.WithContext(ctx).First(&sos, "id = ?", upd.SOSID).Error; err != nil {
		return
	}
	if sos.IsResolved {
		return
	}
	var accepted int64
	s.db.WithContext(ctx).Model(&models.SOSResponder{}).
		Where("sos_id = ? AND user_id = ?", upd.SOSID, userID).
		Count(&accepted)
	if accepted == 0 {
		return
	}

	ts := s.now()
	if upd.Timestamp > 0 {
		ts = time.UnixMilli(upd.Timestamp)
	}
	ping := LocationPing{
		SOSID:       upd.SOSID,
		ResponderID: userID,
		Latitude:    upd.Latitude,
		Longitude:   upd.Longitude,
		Timestamp:   ts,
	}

	key := pingKey(upd.SOSID, userID)
	if last, ok := s.lastPings.Get(key); ok && !ts.After(last.Timestamp) {
		return
	}
	s.lastPings.Add(key, ping)

	if s.pusher != nil {
		s.pusher.SendToUser(sos.UserID, websocket.EventVolunteerMoved, ping)
	}
}

// LastPing exposes the most recently relayed position for a pair.
func (s *SOSService) LastPing(alertID, responderID string) (LocationPing, bool) {
	return s.lastPings.Get(pingKey(alertID, responderID))
}

func (s *SOSService) purgePings(alertID string) {
	prefix := alertID + "/"
	for _, k := range s.lastPings.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.lastPings.Remove(k)
		}
	}
}

func pingKey(alertID, responderID string) string {
	return alertID + "/" + responderID
}
