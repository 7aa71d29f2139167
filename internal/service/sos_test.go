package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Lifeline/internal/models"
	"Lifeline/pkg/cache"
	errs "Lifeline/pkg/errors"
)

func newSOSService(t *testing.T, db *gorm.DB, pusher *fakePusher, sender *recordingSender) *SOSService {
	t.Helper()
	c, err := cache.NewCache(cache.Config{Type: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	mailer := newTestMailer(sender)
	notify := NewNotificationService(db, pusher, mailer)
	return NewSOSService(db, notify, pusher, mailer, c)
}

func TestRaiseFansOutToEligibleResponders(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	r1 := seedResponder(t, db, "resp1")
	r2 := seedResponder(t, db, "resp2")
	seedUser(t, db, "pending", "responder", true, false) // not approved
	seedUser(t, db, "bystander", "requester", true, true)

	pusher := newFakePusher(r1.ID, r2.ID)
	sender := &recordingSender{}
	svc := newSOSService(t, db, pusher, sender)

	sos, err := svc.Raise(context.Background(), creator, "trapped", 40.7, -74.0, false)
	require.NoError(t, err)
	require.NotEmpty(t, sos.ID)
	assert.False(t, sos.IsResolved)

	var count int64
	db.Model(&models.Notification{}).
		Where("related_id = ? AND type = ?", sos.ID, models.NotificationTypeAlert).
		Count(&count)
	assert.EqualValues(t, 2, count, "only verified approved responders get records")

	var toCreator int64
	db.Model(&models.Notification{}).
		Where("related_id = ? AND recipient_id = ?", sos.ID, creator.ID).
		Count(&toCreator)
	assert.Zero(t, toCreator)

	require.Len(t, pusher.broadcasts, 1)
	assert.Equal(t, "newSOS", pusher.broadcasts[0].Event)

	// The SMS blast runs off the request path.
	require.Eventually(t, func() bool {
		for _, m := range sender.messages() {
			for _, to := range m.To {
				if strings.HasSuffix(to, "@txt.att.net") {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRaiseSilentSkipsAllChannels(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "quiet", "requester", true, true)
	seedResponder(t, db, "resp1")
	pusher := newFakePusher()
	sender := &recordingSender{}
	svc := newSOSService(t, db, pusher, sender)

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)

	var count int64
	db.Model(&models.Notification{}).Where("related_id = ?", sos.ID).Count(&count)
	assert.Zero(t, count)
	assert.Empty(t, pusher.broadcasts)
	assert.Empty(t, sender.messages())

	var stored models.SOS
	require.NoError(t, db.First(&stored, "id = ?", sos.ID).Error)
	assert.Equal(t, creator.ID, stored.UserID)
}

func TestAcceptIsIdempotentUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	creator := seedUser(t, db, "victim", "requester", true, true)
	responder := seedResponder(t, db, "racer")
	svc := newSOSService(t, db, newFakePusher(), &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Accept(context.Background(), sos.ID, responder.ID)
		}()
	}
	wg.Wait()

	var rows []models.SOSResponder
	require.NoError(t, db.Where("sos_id = ?", sos.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, responder.ID, rows[0].UserID)
}

func TestAcceptRecordsRespondersInOrder(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	r1 := seedResponder(t, db, "first")
	r2 := seedResponder(t, db, "second")
	pusher := newFakePusher(creator.ID)
	svc := newSOSService(t, db, pusher, &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), sos.ID, r1.ID)
	require.NoError(t, err)
	got, err := svc.Accept(context.Background(), sos.ID, r2.ID)
	require.NoError(t, err)

	require.Len(t, got.Responders, 2)
	assert.Equal(t, r1.ID, got.Responders[0].UserID)
	assert.Equal(t, r2.ID, got.Responders[1].UserID)

	// The creator hears about each distinct acceptance exactly once.
	events := pusher.sentTo(creator.ID)
	require.Len(t, events, 2)
	assert.Equal(t, "sosAccepted", events[0].Event)

	// A repeat accept adds nothing and pushes nothing.
	again, err := svc.Accept(context.Background(), sos.ID, r1.ID)
	require.NoError(t, err)
	assert.Len(t, again.Responders, 2)
	assert.Len(t, pusher.sentTo(creator.ID), 2)
}

func TestAcceptUnknownAlert(t *testing.T) {
	db := newTestDB(t)
	responder := seedResponder(t, db, "lost")
	svc := newSOSService(t, db, newFakePusher(), &recordingSender{})

	_, err := svc.Accept(context.Background(), "no-such-alert", responder.ID)
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestResolveIsOneWayLatch(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	responder := seedResponder(t, db, "helper")
	pusher := newFakePusher(responder.ID)
	svc := newSOSService(t, db, pusher, &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), sos.ID, responder.ID)
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), sos.ID, creator.ID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)

	// Accepted responders are told live.
	var sawResolved bool
	for _, e := range pusher.sentTo(responder.ID) {
		if e.Event == "sosResolved" {
			sawResolved = true
		}
	}
	assert.True(t, sawResolved)

	_, err = svc.Resolve(context.Background(), sos.ID, creator.ID)
	assert.True(t, errs.IsCode(err, errs.CodeAlreadyResolved))

	_, err = svc.Accept(context.Background(), sos.ID, responder.ID)
	assert.True(t, errs.IsCode(err, errs.CodeAlreadyResolved))
}

func TestResolveOnlyByCreator(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	other := seedResponder(t, db, "other")
	svc := newSOSService(t, db, newFakePusher(), &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), sos.ID, other.ID)
	assert.True(t, errs.IsCode(err, errs.CodeForbidden))

	var stored models.SOS
	require.NoError(t, db.First(&stored, "id = ?", sos.ID).Error)
	assert.False(t, stored.IsResolved)
}

func locationPayload(t *testing.T, sosID string, lat, lng float64, ts time.Time) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"sosId":     sosID,
		"latitude":  lat,
		"longitude": lng,
		"timestamp": ts.UnixMilli(),
	})
	require.NoError(t, err)
	return raw
}

func TestLocationRelayToCreator(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	responder := seedResponder(t, db, "mover")
	pusher := newFakePusher(creator.ID)
	svc := newSOSService(t, db, pusher, &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), sos.ID, responder.ID)
	require.NoError(t, err)
	before := len(pusher.sentTo(creator.ID))

	base := time.Now()
	svc.HandleLocationUpdate(responder.ID, locationPayload(t, sos.ID, 40.0, -74.0, base))

	events := pusher.sentTo(creator.ID)
	require.Len(t, events, before+1)
	assert.Equal(t, "respondingVolunteerLocation", events[before].Event)
	ping := events[before].Data.(LocationPing)
	assert.Equal(t, responder.ID, ping.ResponderID)
	assert.Equal(t, 40.0, ping.Latitude)

	// An older or equal timestamp never overwrites the newest ping.
	svc.HandleLocationUpdate(responder.ID, locationPayload(t, sos.ID, 41.0, -75.0, base.Add(-time.Second)))
	assert.Len(t, pusher.sentTo(creator.ID), before+1)
	last, ok := svc.LastPing(sos.ID, responder.ID)
	require.True(t, ok)
	assert.Equal(t, 40.0, last.Latitude)

	// A newer one does.
	svc.HandleLocationUpdate(responder.ID, locationPayload(t, sos.ID, 42.0, -76.0, base.Add(time.Second)))
	assert.Len(t, pusher.sentTo(creator.ID), before+2)
	last, _ = svc.LastPing(sos.ID, responder.ID)
	assert.Equal(t, 42.0, last.Latitude)
}

func TestLocationRelayRequiresAcceptance(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	stranger := seedResponder(t, db, "stranger")
	pusher := newFakePusher(creator.ID)
	svc := newSOSService(t, db, pusher, &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)

	svc.HandleLocationUpdate(stranger.ID, locationPayload(t, sos.ID, 40.0, -74.0, time.Now()))
	assert.Empty(t, pusher.sentTo(creator.ID))
	_, ok := svc.LastPing(sos.ID, stranger.ID)
	assert.False(t, ok)
}

func TestLocationRelayStopsAtResolution(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	responder := seedResponder(t, db, "late")
	pusher := newFakePusher(creator.ID)
	svc := newSOSService(t, db, pusher, &recordingSender{})

	sos, err := svc.Raise(context.Background(), creator, "", 1, 2, true)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), sos.ID, responder.ID)
	require.NoError(t, err)
	svc.HandleLocationUpdate(responder.ID, locationPayload(t, sos.ID, 40.0, -74.0, time.Now()))

	_, err = svc.Resolve(context.Background(), sos.ID, creator.ID)
	require.NoError(t, err)
	after := len(pusher.sentTo(creator.ID))

	// Cached pings are purged and late pings dropped.
	_, ok := svc.LastPing(sos.ID, responder.ID)
	assert.False(t, ok)
	svc.HandleLocationUpdate(responder.ID, locationPayload(t, sos.ID, 41.0, -75.0, time.Now()))
	assert.Len(t, pusher.sentTo(creator.ID), after)
}

func TestEligibleRespondersCached(t *testing.T) {
	db := newTestDB(t)
	creator := seedUser(t, db, "victim", "requester", true, true)
	seedResponder(t, db, "cached")
	svc := newSOSService(t, db, newFakePusher(), &recordingSender{})

	_, err := svc.Raise(context.Background(), creator, "", 1, 2, false)
	require.NoError(t, err)

	// A responder added after the first raise is invisible until the
	// cache entry expires.
	seedResponder(t, db, "newcomer")
	sos2, err := svc.Raise(context.Background(), creator, "", 1, 2, false)
	require.NoError(t, err)

	var count int64
	db.Model(&models.Notification{}).
		Where("related_id = ? AND type = ?", sos2.ID, models.NotificationTypeAlert).
		Count(&count)
	assert.EqualValues(t, 1, count)
}
