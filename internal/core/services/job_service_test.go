package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webhookSink collects notifications posted to a test webhook
func webhookSink(t *testing.T) (string, <-chan Notification) {
	t.Helper()
	ch := make(chan Notification, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			ch <- n
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv.URL, ch
}

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
		return Notification{}
	}
}

func TestNotifierRoutesToCurrentApprovers(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")
	requester := f.user("clerk", "staff")
	sup1 := f.user("sup1", "supervisor")
	sup2 := f.user("sup2", "supervisor")
	f.userIn(f.other, "sup3", "supervisor")

	url, sink := webhookSink(t)
	f.engine.Subscribe(NewNotificationService(f.assignmentRepo, url))

	w := f.workflow(admin, "Update", domain.EntityPropertyUpdate, f.step(1, "supervisor"))
	req, err := f.engine.Create(f.ctx, requester, &CreateRequestInput{
		WorkflowID: w.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "P-1",
	})
	require.NoError(t, err)

	n := receive(t, sink)
	assert.Equal(t, NotifyAwaiting, n.Kind)
	assert.Equal(t, req.ID, n.RequestID)
	assert.ElementsMatch(t, []uint{sup1.UserID, sup2.UserID}, n.Recipients)

	_, err = f.engine.Respond(f.ctx, sup1, req.ID, &RespondInput{StepID: w.StepAt(1).ID, Status: string(domain.ResponseApproved)})
	require.NoError(t, err)

	n = receive(t, sink)
	assert.Equal(t, NotifyDecided, n.Kind)
	assert.Equal(t, domain.RequestApproved, n.Status)
	assert.Empty(t, n.Recipients)
}

func TestRemindStale(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")
	requester := f.user("clerk", "staff")
	mgr := f.user("mgr", "manager")

	url, sink := webhookSink(t)
	notifier := NewNotificationService(f.assignmentRepo, url)
	jobs := NewJobService(config.JobsConfig{ReminderStaleHours: 48}, f.requestRepo, f.tokenRepo, notifier)

	w := f.workflow(admin, "Update", domain.EntityPropertyUpdate, f.step(1, "manager"))
	open, err := f.engine.Create(f.ctx, requester, &CreateRequestInput{
		WorkflowID: w.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "P-1",
	})
	require.NoError(t, err)
	done, err := f.engine.Create(f.ctx, requester, &CreateRequestInput{
		WorkflowID: w.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "P-2",
	})
	require.NoError(t, err)
	_, err = f.engine.Cancel(f.ctx, requester, done.ID, "")
	require.NoError(t, err)

	assert.Zero(t, jobs.RemindStale(f.ctx))

	jobs.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	assert.Equal(t, 1, jobs.RemindStale(f.ctx))

	n := receive(t, sink)
	assert.Equal(t, NotifyReminder, n.Kind)
	assert.Equal(t, open.ID, n.RequestID)
	assert.Equal(t, []uint{mgr.UserID}, n.Recipients)
}

func TestCleanupTokens(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", "staff")
	jobs := NewJobService(config.JobsConfig{}, f.requestRepo, f.tokenRepo, NewNotificationService(f.assignmentRepo, ""))

	require.NoError(t, f.tokenRepo.Create(f.ctx, &models.RefreshToken{
		UserID: alice.UserID, TokenHash: "expired", ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, f.tokenRepo.Create(f.ctx, &models.RefreshToken{
		UserID: alice.UserID, TokenHash: "live", ExpiresAt: time.Now().Add(time.Hour),
	}))

	assert.EqualValues(t, 1, jobs.CleanupTokens(f.ctx))
	assert.EqualValues(t, 0, jobs.CleanupTokens(f.ctx))

	_, err := f.tokenRepo.FindByHash(f.ctx, "live")
	assert.NoError(t, err)
}

func TestJobServiceRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	jobs := NewJobService(config.JobsConfig{ReminderCron: "every tuesday", TokenCleanupCron: "0 0 3 * * *"},
		f.requestRepo, f.tokenRepo, NewNotificationService(f.assignmentRepo, ""))

	assert.Error(t, jobs.Start())
}
