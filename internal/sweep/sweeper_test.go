package sweep

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"taskpulse/internal/domain"
	"taskpulse/internal/store"
)

type sentMsg struct {
	To      string
	Subject string
	Body    string
}

// recordingSink captures sends and can be told to fail for specific
// addresses.
type recordingSink struct {
	mu     sync.Mutex
	sent   []sentMsg
	failTo map[string]bool
}

func (r *recordingSink) Send(_ context.Context, to, subject, body string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTo[to] {
		return false
	}
	r.sent = append(r.sent, sentMsg{To: to, Subject: subject, Body: body})
	return true
}

func (r *recordingSink) messages() []sentMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMsg(nil), r.sent...)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, store.EnsureSchema(db))
	t.Cleanup(func() { _ = db.Close() })
	return store.NewSQLiteStore(db, store.Options{})
}

type fixture struct {
	store store.Store
	sink  *recordingSink
	sweep *Sweeper
	ws    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newTestStore(t)
	sink := &recordingSink{failTo: map[string]bool{}}
	ws, err := st.CreateWorkspace(context.Background(), domain.Workspace{Name: "eng"})
	require.NoError(t, err)
	return &fixture{
		store: st,
		sink:  sink,
		sweep: New(st, sink, 24*time.Hour),
		ws:    ws,
	}
}

func (f *fixture) user(t *testing.T, username string, active bool) string {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), domain.User{
		Username: username, Email: username + "@example.com", IsActive: active,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) member(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, f.store.AddMember(context.Background(), f.ws, userID))
}

func (f *fixture) task(t *testing.T, task domain.Task) string {
	t.Helper()
	task.WorkspaceID = f.ws
	if task.Title == "" {
		task.Title = "task"
	}
	if task.Description == "" {
		task.Description = "desc"
	}
	id, err := f.store.CreateTask(context.Background(), task)
	require.NoError(t, err)
	return id
}

func TestOverdueSweepTransitionsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	assignee := f.user(t, "bob", true)
	id := f.task(t, domain.Task{
		Title: "write report", Deadline: now.Add(-2 * time.Hour),
		Status: domain.StatusPending, CreatedBy: creator, AssignedTo: &assignee,
	})

	f.sweep.RunOnce(ctx, now)

	got, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, got.Status)
	assert.True(t, got.OverdueNotified)

	msgs := f.sink.messages()
	require.Len(t, msgs, 2)
	tos := []string{msgs[0].To, msgs[1].To}
	assert.ElementsMatch(t, []string{"bob@example.com", "alice@example.com"}, tos)
	for _, m := range msgs {
		assert.Equal(t, "URGENT: Task Past Due!", m.Subject)
		assert.Contains(t, m.Body, "write report")
		assert.Contains(t, m.Body, "eng")
	}
}

func TestOverdueSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	f.task(t, domain.Task{
		Deadline: now.Add(-2 * time.Hour), Status: domain.StatusPending,
		CreatedBy: creator, AssignedTo: &creator,
	})

	f.sweep.RunOnce(ctx, now)
	require.Len(t, f.sink.messages(), 1)

	f.sweep.RunOnce(ctx, now)
	f.sweep.RunOnce(ctx, now.Add(time.Minute))
	assert.Len(t, f.sink.messages(), 1)
}

func TestUpcomingSweepFansOutToWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	f.member(t, creator)
	f.member(t, f.user(t, "bob", true))
	f.member(t, f.user(t, "carol", true))
	f.member(t, f.user(t, "dan", false))

	id := f.task(t, domain.Task{
		Title: "quarterly review", Deadline: now.Add(20 * time.Hour),
		Status: domain.StatusDoing, CreatedBy: creator,
	})

	f.sweep.RunOnce(ctx, now)

	got, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDoing, got.Status, "reminder must not change status")
	assert.True(t, got.ReminderSent)

	msgs := f.sink.messages()
	require.Len(t, msgs, 3, "inactive member is suppressed")
	for _, m := range msgs {
		assert.Equal(t, "Reminder: Task Due Soon", m.Subject)
		assert.Contains(t, m.Body, "quarterly review")
		assert.NotEqual(t, "dan@example.com", m.To)
	}
}

func TestUpcomingSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	f.member(t, creator)
	f.task(t, domain.Task{
		Deadline: now.Add(6 * time.Hour), Status: domain.StatusPending, CreatedBy: creator,
	})

	f.sweep.RunOnce(ctx, now)
	f.sweep.RunOnce(ctx, now)
	assert.Len(t, f.sink.messages(), 1)
}

func TestSinkFailureDoesNotBlockSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	assignee := f.user(t, "bob", true)
	f.sink.failTo["bob@example.com"] = true

	id := f.task(t, domain.Task{
		Deadline: now.Add(-time.Hour), Status: domain.StatusPending,
		CreatedBy: creator, AssignedTo: &assignee,
	})

	f.sweep.RunOnce(ctx, now)

	// The other recipient still got its message and the flag is committed.
	msgs := f.sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@example.com", msgs[0].To)

	got, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.OverdueNotified)
	assert.Equal(t, domain.StatusPastDue, got.Status)
}

func TestAssigneeIsCreatorGetsOneMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	f.task(t, domain.Task{
		Deadline: now.Add(-time.Hour), Status: domain.StatusPending,
		CreatedBy: creator, AssignedTo: &creator,
	})

	f.sweep.RunOnce(ctx, now)

	msgs := f.sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@example.com", msgs[0].To)
}

func TestInactiveAssigneeStillTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", false)
	assignee := f.user(t, "bob", false)
	id := f.task(t, domain.Task{
		Deadline: now.Add(-time.Hour), Status: domain.StatusPending,
		CreatedBy: creator, AssignedTo: &assignee,
	})

	f.sweep.RunOnce(ctx, now)

	assert.Empty(t, f.sink.messages())

	got, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, got.Status)
	assert.True(t, got.OverdueNotified)
}

func TestBothPassesRunInOneTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	creator := f.user(t, "alice", true)
	late := f.task(t, domain.Task{
		Title: "late", Deadline: now.Add(-time.Hour),
		Status: domain.StatusPending, CreatedBy: creator, AssignedTo: &creator,
	})
	soon := f.task(t, domain.Task{
		Title: "soon", Deadline: now.Add(3 * time.Hour),
		Status: domain.StatusDoing, CreatedBy: creator, AssignedTo: &creator,
	})

	f.sweep.RunOnce(ctx, now)

	gotLate, err := f.store.GetTask(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, gotLate.Status)

	gotSoon, err := f.store.GetTask(ctx, soon)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDoing, gotSoon.Status)
	assert.True(t, gotSoon.ReminderSent)

	subjects := map[string]int{}
	for _, m := range f.sink.messages() {
		subjects[m.Subject]++
	}
	assert.Equal(t, 1, subjects["URGENT: Task Past Due!"])
	assert.Equal(t, 1, subjects["Reminder: Task Due Soon"])
}

func TestResolverUnassignedUsesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.user(t, "alice", true)
	f.member(t, creator)
	f.member(t, f.user(t, "bob", false))

	id := f.task(t, domain.Task{
		Deadline: time.Now().Add(time.Hour), Status: domain.StatusPending, CreatedBy: creator,
	})
	task, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)

	r := NewResolver(f.store)
	recipients, err := r.Resolve(ctx, task)
	require.NoError(t, err)
	// Inactive members resolve too; filtering happens at send time.
	require.Len(t, recipients, 2)
}

func TestResolverMissingAssigneeFallsBackToCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator := f.user(t, "alice", true)
	ghost := "usr_gone"
	id := f.task(t, domain.Task{
		Deadline: time.Now().Add(time.Hour), Status: domain.StatusPending,
		CreatedBy: creator, AssignedTo: &ghost,
	})
	task, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)

	r := NewResolver(f.store)
	recipients, err := r.Resolve(ctx, task)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "alice@example.com", recipients[0].Email)
}
