package handler

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/security/middleware"
	"github.com/aryan0dhankhar/datingapp/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "register", "profiles", "profile", "me", "edit", "error"}

// page is what every template receives
type page struct {
	Title  string
	Viewer *domain.Profile
	Error  string
	Fields map[string]string
	Data   any
}

type registerForm struct {
	Name       string
	Email      string
	OpenInfo   string
	ClosedInfo string
}

type browseData struct {
	Profiles []ProfileResponse
	Keyword  string
	Page     int
	PrevPage int
	NextPage int
	HasPrev  bool
	HasNext  bool
}

type profileData struct {
	Profile ProfileResponse
	Self    bool
	CanLike bool
	State   domain.RelationState
}

type meData struct {
	Profile  ProfileResponse
	Overview OverviewResponse
}

type errorData struct {
	Status int
}

// WebHandler serves the server-rendered HTML pages
type WebHandler struct {
	profiles  *service.ProfileService
	relations *service.RelationService
	sessions  *Sessions
	paging    Paging
	pages     map[string]*template.Template
	logger    *slog.Logger
}

// NewWebHandler parses the embedded templates and creates the handler
func NewWebHandler(
	profiles *service.ProfileService,
	relations *service.RelationService,
	sessions *Sessions,
	paging Paging,
	logger *slog.Logger,
) (*WebHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if paging.DefaultSize <= 0 {
		paging.DefaultSize = 10
	}
	if paging.MaxSize < paging.DefaultSize {
		paging.MaxSize = paging.DefaultSize
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &WebHandler{
		profiles:  profiles,
		relations: relations,
		sessions:  sessions,
		paging:    paging,
		pages:     pages,
		logger:    logger,
	}, nil
}

// Index handles GET /
func (h *WebHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", page{Title: "Welcome"})
}

// RegisterForm handles GET /register
func (h *WebHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", page{Title: "Register", Data: registerForm{}})
}

// Register handles POST /register
func (h *WebHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.renderError(w, r, err)
		return
	}
	in := service.RegisterInput{
		Name:       r.PostFormValue("name"),
		Email:      r.PostFormValue("email"),
		Password:   r.PostFormValue("password"),
		OpenInfo:   r.PostFormValue("openInfo"),
		ClosedInfo: r.PostFormValue("closedInfo"),
	}

	profile, err := h.profiles.Register(r.Context(), in)
	if err == nil {
		err = h.sessions.Start(w, profile.ID)
	}
	if err != nil {
		status, _ := statusFor(err)
		h.render(w, r, status, "register", h.failure(err, page{
			Title: "Register",
			Data:  registerForm{Name: in.Name, Email: in.Email, OpenInfo: in.OpenInfo, ClosedInfo: in.ClosedInfo},
		}))
		return
	}
	http.Redirect(w, r, "/profiles/me", http.StatusSeeOther)
}

// Login handles POST /login
func (h *WebHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.renderError(w, r, err)
		return
	}

	profile, err := h.profiles.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidCredential) {
		err = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
	}
	if err == nil {
		err = h.sessions.Start(w, profile.ID)
	}
	if err != nil {
		status, _ := statusFor(err)
		h.render(w, r, status, "index", h.failure(err, page{Title: "Welcome"}))
		return
	}
	http.Redirect(w, r, "/profiles/me", http.StatusSeeOther)
}

// Logout handles POST /logout
func (h *WebHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Present(r) {
		h.sessions.End(r.Context(), w)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Browse handles GET /profiles. Signed-in viewers do not see themselves or
// anyone they already have a relation with.
func (h *WebHandler) Browse(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := h.paging.parse(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	found, err := h.profiles.ListPaged(r.Context(), offset, limit, keyword)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	visible := found
	if viewer, err := middleware.ProfileIDFromContext(r.Context()); err == nil {
		rels, err := h.relations.ForProfile(r.Context(), viewer)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		visible = h.profiles.FilterBrowsable(found, viewer, rels)
	}

	current := offset / limit
	h.render(w, r, http.StatusOK, "profiles", page{
		Title: "Profiles",
		Data: browseData{
			Profiles: profileViews(visible, VisibilityPublic),
			Keyword:  keyword,
			Page:     current,
			PrevPage: current - 1,
			NextPage: current + 1,
			HasPrev:  current > 0,
			HasNext:  len(found) == limit,
		},
	})
}

// Profile handles GET /profiles/{id}
func (h *WebHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	data := profileData{Profile: profileView(profile, VisibilityPublic)}
	if viewer, err := middleware.ProfileIDFromContext(r.Context()); err == nil {
		data.Profile = profileView(profile, visibilityFor(r, h.relations, viewer, id))
		data.Self = viewer == id
		if !data.Self {
			rel, err := h.relations.Between(r.Context(), viewer, id)
			switch {
			case err == nil:
				data.State = rel.State
				data.CanLike = rel.AimID == viewer && rel.State != domain.RelationApproved
			case errors.Is(err, domain.ErrNotFound):
				data.CanLike = true
			default:
				h.renderError(w, r, err)
				return
			}
		}
	}
	h.render(w, r, http.StatusOK, "profile", page{Title: profile.Name, Data: data})
}

// Like handles POST /profiles/{id}/like
func (h *WebHandler) Like(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	aim, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if _, err := h.relations.Like(r.Context(), viewer, aim); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profiles/"+strconv.FormatInt(aim, 10), http.StatusSeeOther)
}

// Me handles GET /profiles/me
func (h *WebHandler) Me(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(r.Context(), viewer)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	ov, err := h.relations.Overview(r.Context(), viewer)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "me", page{
		Title: "My profile",
		Data:  meData{Profile: profileView(profile, VisibilityOwner), Overview: overviewView(ov)},
	})
}

// Approve handles POST /profiles/relations/{initiatorId}/approve
func (h *WebHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.relations.Approve)
}

// Reject handles POST /profiles/relations/{initiatorId}/reject
func (h *WebHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.relations.Reject)
}

func (h *WebHandler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, aimID, initiatorID int64) (*domain.Relation, error)) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	initiator, err := pathID(r, "initiatorId")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if _, err := fn(r.Context(), viewer, initiator); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profiles/me", http.StatusSeeOther)
}

// DeleteRelation handles POST /profiles/relations/{relationId}/delete
func (h *WebHandler) DeleteRelation(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	relationID, err := pathID(r, "relationId")
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.relations.Delete(r.Context(), viewer, relationID); err != nil {
		h.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/profiles/me", http.StatusSeeOther)
}

// EditForm handles GET /profiles/me/edit
func (h *WebHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.Get(r.Context(), viewer)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "edit", page{Title: "Edit profile", Data: profileView(profile, VisibilityOwner)})
}

// Edit handles POST /profiles/me/edit. An empty password field keeps the
// current password.
func (h *WebHandler) Edit(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(w, r); err != nil {
		h.renderError(w, r, err)
		return
	}

	upd := service.ProfileUpdate{}
	for field, dst := range map[string]**string{
		"name":       &upd.Name,
		"email":      &upd.Email,
		"openInfo":   &upd.OpenInfo,
		"closedInfo": &upd.ClosedInfo,
	} {
		if vals, ok := r.PostForm[field]; ok && len(vals) > 0 {
			v := vals[0]
			*dst = &v
		}
	}
	if pw := r.PostFormValue("password"); pw != "" {
		upd.Password = &pw
	}

	if _, err := h.profiles.Update(r.Context(), viewer, upd); err != nil {
		status, _ := statusFor(err)
		current, getErr := h.profiles.Get(r.Context(), viewer)
		if getErr != nil {
			h.renderError(w, r, getErr)
			return
		}
		h.render(w, r, status, "edit", h.failure(err, page{Title: "Edit profile", Data: profileView(current, VisibilityOwner)}))
		return
	}
	http.Redirect(w, r, "/profiles/me", http.StatusSeeOther)
}

// Delete handles POST /profiles/me/delete
func (h *WebHandler) Delete(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	if err := h.parseForm(w, r); err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.profiles.Delete(r.Context(), viewer, r.PostFormValue("password")); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.sessions.End(r.Context(), w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// requireSession sends anonymous visitors back to the start page
func (h *WebHandler) requireSession(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.ProfileIDFromContext(r.Context())
	if errors.Is(err, domain.ErrUnauthorized) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return 0, false
	}
	if err != nil {
		h.renderError(w, r, err)
		return 0, false
	}
	return id, true
}

func (h *WebHandler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: invalid form: %v", domain.ErrValidation, err)
	}
	return nil
}

// failure copies the error message and field details into p
func (h *WebHandler) failure(err error, p page) page {
	status, _ := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal_error", slog.String("error", err.Error()))
		p.Error = "Something went wrong. Please try again."
		return p
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		p.Error = "Please correct the highlighted fields."
		p.Fields = verr.Fields
		return p
	}
	p.Error = err.Error()
	return p
}

func (h *WebHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := statusFor(err)
	h.render(w, r, status, "error", h.failure(err, page{
		Title: http.StatusText(status),
		Data:  errorData{Status: status},
	}))
}

func (h *WebHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	if id, err := middleware.ProfileIDFromContext(r.Context()); err == nil {
		if viewer, err := h.profiles.Get(r.Context(), id); err == nil {
			p.Viewer = viewer
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages[name].ExecuteTemplate(w, "layout", p); err != nil {
		h.logger.Error("failed to render page", slog.String("page", name), slog.String("error", err.Error()))
	}
}
