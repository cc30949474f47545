package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/repository"
	"github.com/aryan0dhankhar/datingapp/internal/security/audit"
	"github.com/aryan0dhankhar/datingapp/internal/security/auth"
	"github.com/aryan0dhankhar/datingapp/internal/security/ratelimit"
	"github.com/aryan0dhankhar/datingapp/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "profileId"

type testApp struct {
	handler http.Handler
	store   *repository.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repository.NewMemoryStore()
	events := service.NewEventRecorder(store.Outbox(), log)
	profiles := service.NewProfileService(store.Profiles(), repository.NewMemoryProfileCache(time.Minute), events, auth.NewHasher(bcrypt.MinCost), log)
	relations := service.NewRelationService(store.Relations(), store.Profiles(), events, log)

	tokens := auth.NewTokenManager("test-secret", "datingapp", time.Hour)
	sessions := NewSessions(tokens, repository.NewMemoryRevocationList(), cookieName, false, log)
	paging := Paging{DefaultSize: 10, MaxSize: 50}

	web, err := NewWebHandler(profiles, relations, sessions, paging, log)
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(1000, time.Minute)
	t.Cleanup(limiter.Stop)

	h := NewRouter(RouterDeps{
		Profiles:       NewProfileHandler(profiles, relations, sessions, paging, log),
		Relations:      NewRelationHandler(relations, log),
		Web:            web,
		Health:         NewHealthHandler(profiles, nil, log),
		Sessions:       sessions,
		Limiter:        limiter,
		LoginPerMinute: 100,
		Audit:          audit.NewLogger(log),
		Logger:         log,
	})
	return &testApp{handler: h, store: store}
}

func (a *testApp) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) form(t *testing.T, path string, values url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) register(t *testing.T, name, email string) (*http.Cookie, ProfileResponse) {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":"pw","openInfo":"%s likes hiking","closedInfo":"secret of %s"}`, name, email, name, name)
	rec := a.do(t, http.MethodPost, "/api/profiles/register", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	c := sessionCookie(rec)
	require.NotNil(t, c)
	return c, p
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegisterAndMe(t *testing.T) {
	app := newTestApp(t)

	cookie, p := app.register(t, "Alice", "Alice@Example.com")
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	rec := app.do(t, http.MethodGet, "/api/profiles/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[ProfileResponse](t, rec)
	assert.Equal(t, "secret of Alice", me.ClosedInfo)
	assert.NotNil(t, me.CreatedAt)

	rec = app.do(t, http.MethodGet, "/api/profiles/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "Alice", "alice@example.com")

	rec := app.do(t, http.MethodPost, "/api/profiles/register", `{"name":"Other","email":"ALICE@example.com","password":"pw"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/register", `{"name":"","email":"nope","password":"pw"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "email")

	rec = app.do(t, http.MethodPost, "/api/profiles/register", `{"name":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("é", 40)
	rec = app.do(t, http.MethodPost, "/api/profiles/register", `{"name":"Eve","email":"eve@example.com","password":"`+long+`"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "password")

	alice := app.do(t, http.MethodPost, "/api/profiles/login", `{"email":"alice@example.com","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, alice.Code)
	rec = app.do(t, http.MethodPost, "/api/profiles/update", `{"password":"`+long+`"}`, sessionCookie(alice))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles/register", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "Alice", "alice@example.com")

	rec := app.do(t, http.MethodPost, "/api/profiles/login", `{"email":"alice@example.com","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	rec = app.do(t, http.MethodPost, "/api/profiles/login", `{"email":"nobody@example.com","password":"pw"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/login", `{"email":"alice@example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/login", `{"email":" ALICE@example.com ","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, sessionCookie(rec))
	assert.Equal(t, int64(1), decode[ProfileResponse](t, rec).ID)
}

func TestLogoutRevokesSession(t *testing.T) {
	app := newTestApp(t)
	cookie, _ := app.register(t, "Alice", "alice@example.com")

	rec := app.do(t, http.MethodPost, "/api/profiles/logout", "", cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = app.do(t, http.MethodGet, "/api/profiles/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/logout", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGarbageCookieIsUnauthorized(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(t, http.MethodGet, "/api/profiles/me", "", &http.Cookie{Name: cookieName, Value: "not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLikeMatchAndVisibility(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")
	bob, bobProfile := app.register(t, "Bob", "bob@example.com")

	rec := app.do(t, http.MethodPost, "/api/relations/like/2", "", alice)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decode[LikeResponse](t, rec).Created)

	rec = app.do(t, http.MethodPost, "/api/relations/like/2", "", alice)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/profiles/2", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ProfileResponse](t, rec).ClosedInfo)

	rec = app.do(t, http.MethodPost, "/api/relations/like/1", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[LikeResponse](t, rec).Created)

	rec = app.do(t, http.MethodGet, "/api/profiles/all/approved", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	contacts := decode[[]ProfileResponse](t, rec)
	require.Len(t, contacts, 1)
	assert.Equal(t, bobProfile.ID, contacts[0].ID)
	assert.Equal(t, "secret of Bob", contacts[0].ClosedInfo)
	assert.Empty(t, contacts[0].Email)

	rec = app.do(t, http.MethodGet, "/api/profiles/2", "", alice)
	assert.Equal(t, "secret of Bob", decode[ProfileResponse](t, rec).ClosedInfo)

	rec = app.do(t, http.MethodGet, "/api/profiles/2", "", nil)
	assert.Empty(t, decode[ProfileResponse](t, rec).ClosedInfo)
}

func TestLikeErrors(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/relations/like/1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/relations/like/1", "", alice).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPost, "/api/relations/like/abc", "", alice).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPost, "/api/relations/like/99", "", alice).Code)
}

func TestRejectListAndDelete(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")
	carol, _ := app.register(t, "Carol", "carol@example.com")

	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/api/relations/like/2", "", alice).Code)

	rec := app.do(t, http.MethodPost, "/api/relations/approve/99", "", carol)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/relations/reject/1", "", carol)
	require.Equal(t, http.StatusOK, rec.Code)
	rel := decode[RelationResponse](t, rec)
	assert.Equal(t, "REJECTED", string(rel.State))

	rec = app.do(t, http.MethodPost, "/api/relations/approve/1", "", carol)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/relations/all?state=rejected&role=initiator", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RelationResponse](t, rec), 1)

	rec = app.do(t, http.MethodGet, "/api/relations/all?state=pending", "", alice)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/relations/all?state=bogus", "", alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodGet, "/api/relations/overview", "", carol)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[OverviewResponse](t, rec)
	require.Len(t, ov.Rejected, 1)
	assert.Equal(t, "Alice", ov.Rejected[0].Counterparty.Name)

	path := fmt.Sprintf("/api/relations/delete/%d", rel.ID)
	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, path, "", alice).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, path, "", alice).Code)
}

func TestAllPaging(t *testing.T) {
	app := newTestApp(t)
	app.register(t, "Alice", "alice@example.com")
	app.register(t, "Bob", "bob@example.com")
	app.register(t, "Carol", "carol@example.com")

	rec := app.do(t, http.MethodGet, "/api/profiles/all?page=0&size=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[[]ProfileResponse](t, rec)
	require.Len(t, first, 2)
	assert.Equal(t, "Alice", first[0].Name)
	assert.Empty(t, first[0].ClosedInfo)
	assert.Empty(t, first[0].Email)

	rec = app.do(t, http.MethodGet, "/api/profiles/all?page=1&size=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ProfileResponse](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodGet, "/api/profiles/all?page=5&size=2", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/profiles/all?page=-1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/profiles/all?size=abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/profiles/all?size=0", "", nil).Code)

	for _, page := range []string{"922337203685477581", "1844674407370955162"} {
		rec = app.do(t, http.MethodGet, "/api/profiles/all?size=10&page="+page, "", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, page)
		assert.Equal(t, "is too large", decode[ErrorResponse](t, rec).Fields["page"])
	}

	rec = app.do(t, http.MethodGet, "/api/profiles/all?keyword=BOB", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]ProfileResponse](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "Bob", found[0].Name)
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")
	app.register(t, "Bob", "bob@example.com")

	rec := app.do(t, http.MethodPost, "/api/profiles/update", `{"name":"Alicia","id":42}`, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[ProfileResponse](t, rec)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Alicia", p.Name)

	rec = app.do(t, http.MethodPost, "/api/profiles/update", `{"name":"Ally","email":"broken"}`, alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = app.do(t, http.MethodGet, "/api/profiles/me", "", alice)
	assert.Equal(t, "Alicia", decode[ProfileResponse](t, rec).Name)

	rec = app.do(t, http.MethodPost, "/api/profiles/update", `{"email":"bob@example.com"}`, alice)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/update", `{"name":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteProfile(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")

	rec := app.do(t, http.MethodDelete, "/api/profiles/delete", `{"password":"wrong"}`, alice)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/api/profiles/delete", `{"password":"pw"}`, alice)
	require.Equal(t, http.StatusNoContent, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/profiles/1", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/profiles/me", "", alice).Code)
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Checks["store"])
	assert.Equal(t, "not configured", ready.Checks["redis"])

	rec = app.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWebPages(t *testing.T) {
	app := newTestApp(t)
	_, bob := app.register(t, "Bob", "bob@example.com")

	rec := app.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `action="/login"`)

	rec = app.do(t, http.MethodGet, "/profiles/me", "", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = app.form(t, "/register", url.Values{
		"name": {"Alice"}, "email": {"alice@example.com"}, "password": {"pw"},
		"openInfo": {"jazz"}, "closedInfo": {"<b>private</b>"},
	}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profiles/me", rec.Header().Get("Location"))
	alice := sessionCookie(rec)
	require.NotNil(t, alice)

	rec = app.do(t, http.MethodGet, "/profiles/me", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "&lt;b&gt;private&lt;/b&gt;")

	rec = app.do(t, http.MethodGet, "/profiles", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bob")

	rec = app.form(t, fmt.Sprintf("/profiles/%d/like", bob.ID), url.Values{}, alice)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = app.do(t, http.MethodGet, "/profiles", "", alice)
	assert.NotContains(t, rec.Body.String(), "Bob likes hiking")

	rec = app.do(t, http.MethodGet, "/profiles/99", "", alice)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.form(t, "/register", url.Values{"name": {"X"}, "email": {"alice@example.com"}, "password": {"pw"}}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = app.form(t, "/login", url.Values{"email": {"alice@example.com"}, "password": {"bad"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.form(t, "/logout", url.Values{}, alice)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http.StatusSeeOther, app.do(t, http.MethodGet, "/profiles/me", "", alice).Code)
}

func TestWebApproveFlow(t *testing.T) {
	app := newTestApp(t)
	alice, _ := app.register(t, "Alice", "alice@example.com")
	bob, _ := app.register(t, "Bob", "bob@example.com")

	require.Equal(t, http.StatusSeeOther, app.form(t, "/profiles/2/like", url.Values{}, alice).Code)

	rec := app.do(t, http.MethodGet, "/profiles/me", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `/profiles/relations/1/approve`)

	rec = app.form(t, "/profiles/relations/1/approve", url.Values{}, bob)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = app.do(t, http.MethodGet, "/profiles/1", "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "secret of Alice")

	rec = app.form(t, "/profiles/me/edit", url.Values{"name": {"Robert"}}, bob)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = app.do(t, http.MethodGet, "/api/profiles/me", "", bob)
	assert.Equal(t, "Robert", decode[ProfileResponse](t, rec).Name)

	rec = app.form(t, "/profiles/me/delete", url.Values{"password": {"pw"}}, bob)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/profiles/2", "", nil).Code)
}
