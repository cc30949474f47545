package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/repository"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	store     *repository.MemoryStore
	profiles  *ProfileService
	relations *RelationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	events := NewEventRecorder(store.Outbox(), nil)
	return &fixture{
		store:     store,
		profiles:  NewProfileService(store.Profiles(), repository.NewMemoryProfileCache(time.Minute), events, auth.NewHasher(bcrypt.MinCost), nil),
		relations: NewRelationService(store.Relations(), store.Profiles(), events, nil),
	}
}

func (f *fixture) register(t *testing.T, name, email string) *domain.Profile {
	t.Helper()
	p, err := f.profiles.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "p", OpenInfo: name + " likes hiking", ClosedInfo: "secret of " + name})
	require.NoError(t, err)
	return p
}

func TestWorkedExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	_, err := f.profiles.Register(ctx, RegisterInput{Name: "A2", Email: "a@x.com", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	created, err := f.relations.Like(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	rel, err := f.store.Relations().GetByPair(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationPending, rel.State)

	created, err = f.relations.Like(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	rel, err = f.store.Relations().GetByPair(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationApproved, rel.State)
	_, err = f.store.Relations().GetByPair(ctx, 2, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	events, err := f.store.Outbox().FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	topics := make([]string, 0, len(events))
	for _, ev := range events {
		topics = append(topics, ev.Topic)
	}
	assert.Equal(t, []string{
		domain.EventProfileRegistered,
		domain.EventProfileRegistered,
		domain.EventRelationLiked,
		domain.EventRelationMatched,
	}, topics)
}

func TestLikeTwiceAlreadyExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.relations.Like(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestLikeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")

	_, err := f.relations.Like(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.relations.Like(ctx, a.ID, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMutualLikeReactivatesRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.relations.Reject(ctx, b.ID, a.ID)
	require.NoError(t, err)

	created, err := f.relations.Like(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, created)

	rel, err := f.store.Relations().GetByPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationApproved, rel.State)
}

func TestRepeatLikeOnApprovedRecordsOneMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		created, err := f.relations.Like(ctx, b.ID, a.ID)
		require.NoError(t, err)
		assert.False(t, created)
	}

	events, err := f.store.Outbox().FetchUnpublished(ctx, 20)
	require.NoError(t, err)
	matched := 0
	for _, ev := range events {
		if ev.Topic == domain.EventRelationMatched {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestConcurrentOppositeLikesYieldOneRelation(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		a := f.register(t, "A", "a@x.com")
		b := f.register(t, "B", "b@x.com")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, pair := range [][2]int64{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(j int, from, to int64) {
				defer wg.Done()
				_, errs[j] = f.relations.Like(ctx, from, to)
			}(j, pair[0], pair[1])
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		all, err := f.relations.ForProfile(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, domain.RelationApproved, all[0].State)
	}
}

func TestApproveRejectRequirePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")

	_, err := f.relations.Approve(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)

	rel, err := f.relations.Approve(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationApproved, rel.State)

	_, err = f.relations.Approve(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.relations.Reject(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApproveByInitiatorIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = f.relations.Approve(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteOnlyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	c := f.register(t, "C", "c@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	rel, err := f.store.Relations().GetByPair(ctx, a.ID, b.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.relations.Delete(ctx, a.ID, rel.ID), domain.ErrNotFound)

	_, err = f.relations.Reject(ctx, b.ID, a.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.relations.Delete(ctx, c.ID, rel.ID), domain.ErrNotFound)
	assert.ErrorIs(t, f.relations.Delete(ctx, 99, rel.ID), domain.ErrNotFound)
	require.NoError(t, f.relations.Delete(ctx, b.ID, rel.ID))
	assert.ErrorIs(t, f.relations.Delete(ctx, b.ID, rel.ID), domain.ErrNotFound)
}

func TestListFilterAndOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	c := f.register(t, "C", "c@x.com")
	d := f.register(t, "D", "d@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.relations.Like(ctx, c.ID, a.ID)
	require.NoError(t, err)
	_, err = f.relations.Like(ctx, d.ID, a.ID)
	require.NoError(t, err)
	_, err = f.relations.Approve(ctx, a.ID, c.ID)
	require.NoError(t, err)

	filter, err := ParseRelationFilter("pending", "aim")
	require.NoError(t, err)
	rels, err := f.relations.List(ctx, a.ID, filter)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, d.ID, rels[0].InitiatorID)

	_, err = ParseRelationFilter("", "bystander")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = ParseRelationFilter("LOVED", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	ov, err := f.relations.Overview(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, ov.PendingSent, 1)
	assert.Equal(t, "B", ov.PendingSent[0].Counterparty.Name)
	require.Len(t, ov.PendingReceived, 1)
	assert.Equal(t, "D", ov.PendingReceived[0].Counterparty.Name)
	require.Len(t, ov.Approved, 1)
	assert.Equal(t, "C", ov.Approved[0].Counterparty.Name)
	assert.Empty(t, ov.Rejected)
}

func TestRegisterNormalizesEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "A", "a@x.com")

	_, err := f.profiles.Register(ctx, RegisterInput{Name: "A", Email: "  A@X.COM ", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.profiles.Register(context.Background(), RegisterInput{Name: "", Email: "not-an-email", Password: ""})
	require.ErrorIs(t, err, domain.ErrValidation)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
}

func TestPasswordLimitCountsBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 40 runes, 80 bytes
	long := strings.Repeat("é", 40)
	_, err := f.profiles.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: long})
	require.ErrorIs(t, err, domain.ErrValidation)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, passwordRule, verr.Fields["password"])

	p, err := f.profiles.Register(ctx, RegisterInput{Name: "A", Email: "a@x.com", Password: strings.Repeat("é", 36)})
	require.NoError(t, err)

	_, err = f.profiles.Update(ctx, p.ID, ProfileUpdate{Password: &long})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "password")

	empty := ""
	_, err = f.profiles.Update(ctx, p.ID, ProfileUpdate{Password: &empty})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")

	_, err := f.profiles.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = f.profiles.Login(ctx, "nobody@x.com", "p")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.profiles.Login(ctx, "A@x.com", "p")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")

	name, email := "Renamed", "broken"
	_, err := f.profiles.Update(ctx, a.ID, ProfileUpdate{Name: &name, Email: &email})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.profiles.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, "a@x.com", got.Email)
}

func TestUpdateAppliesFieldsAndInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	f.register(t, "B", "b@x.com")

	_, err := f.profiles.Get(ctx, a.ID)
	require.NoError(t, err)

	taken := "b@x.com"
	_, err = f.profiles.Update(ctx, a.ID, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	name, password, closed := "Alice", "new-pass", "new secret"
	updated, err := f.profiles.Update(ctx, a.ID, ProfileUpdate{Name: &name, Password: &password, ClosedInfo: &closed})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, "A likes hiking", updated.OpenInfo)

	got, err := f.profiles.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "new secret", got.ClosedInfo)

	_, err = f.profiles.Login(ctx, "a@x.com", "new-pass")
	require.NoError(t, err)

	_, err = f.profiles.Update(ctx, 99, ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.profiles.Get(ctx, a.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.profiles.Delete(ctx, a.ID, "wrong"), domain.ErrForbidden)
	assert.ErrorIs(t, f.profiles.Delete(ctx, 99, "p"), domain.ErrNotFound)

	require.NoError(t, f.profiles.Delete(ctx, a.ID, "p"))
	_, err = f.profiles.Get(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rels, err := f.relations.ForProfile(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestListPaged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		f.register(t, "user", email)
	}

	page, err := f.profiles.ListPaged(ctx, 2, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(3), page[0].ID)

	page, err = f.profiles.ListPaged(ctx, 3, 2, "")
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = f.profiles.ListPaged(ctx, 0, 10, "HIKING")
	require.NoError(t, err)
	assert.Len(t, page, 3)

	_, err = f.profiles.ListPaged(ctx, -1, 2, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.profiles.ListPaged(ctx, 0, 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApprovedContactsAndBrowseFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A", "a@x.com")
	b := f.register(t, "B", "b@x.com")
	c := f.register(t, "C", "c@x.com")
	d := f.register(t, "D", "d@x.com")

	_, err := f.relations.Like(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.relations.Like(ctx, b.ID, a.ID)
	require.NoError(t, err)
	_, err = f.relations.Like(ctx, c.ID, a.ID)
	require.NoError(t, err)

	rels, err := f.relations.ForProfile(ctx, a.ID)
	require.NoError(t, err)

	contacts, err := f.profiles.ApprovedContacts(ctx, a.ID, rels)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, b.ID, contacts[0].ID)

	all, err := f.profiles.ListPaged(ctx, 0, 10, "")
	require.NoError(t, err)
	browsable := f.profiles.FilterBrowsable(all, a.ID, rels)
	require.Len(t, browsable, 1)
	assert.Equal(t, d.ID, browsable[0].ID)
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, SeedDemo(ctx, f.profiles, nil))
	require.NoError(t, SeedDemo(ctx, f.profiles, nil))

	all, err := f.profiles.ListPaged(ctx, 0, 10, "")
	require.NoError(t, err)
	assert.Len(t, all, len(DemoProfiles))
}
