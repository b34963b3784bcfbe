package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mouldworks/mouldworks/internal/platform/httpx"
	"github.com/mouldworks/mouldworks/internal/rbac"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	sessions  *shared.SessionManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, sessions: sessions, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		// Backwards-compatible: older seeds use `rbac.view`/`rbac.edit` while the UI uses `users.*`.
		r.Use(h.rbac.RequireAny(shared.PermUsersView, "rbac.view"))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit, "rbac.edit"))
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Post("/{id}", h.updateUser)
		r.Post("/{id}/password", h.resetPassword)
	})
}

// MountAPIRoutes registers JSON endpoints for the authenticated user.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireUser())
		r.Get("/me", h.me)
	})
}

type formErrors map[string]string

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		h.render(w, r, "pages/users/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", map[string]any{"Users": users}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/users/form.html", map[string]any{"Errors": formErrors{}, "Roles": ValidRoles}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req := CreateUserRequest{
		Email:    r.PostFormValue("email"),
		Name:     r.PostFormValue("name"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
		ActorID:  h.currentUserID(r),
	}
	if _, err := h.service.CreateUser(r.Context(), req); err != nil {
		h.renderCreateError(w, r, req, err)
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User created")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req := UpdateUserRequest{
		Name:     r.PostFormValue("name"),
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("is_active") == "on" || r.PostFormValue("is_active") == "true",
		ActorID:  h.currentUserID(r),
	}
	if _, err := h.service.UpdateUser(r.Context(), id, req); err != nil {
		h.redirectWithFlash(w, r, "/users", "error", flashMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "User updated")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.ResetPassword(r.Context(), id, r.PostFormValue("password"), h.currentUserID(r)); err != nil {
		h.redirectWithFlash(w, r, "/users", "error", flashMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/users", "success", "Password reset")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID := h.currentUserID(r)
	if userID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated user")
		return
	}
	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "account no longer exists")
			return
		}
		h.logger.Error("load current user", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load user")
		return
	}
	perms, err := h.rbac.Service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("load permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load permissions")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": perms,
	})
}

func (h *Handler) currentUserID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (h *Handler) renderCreateError(w http.ResponseWriter, r *http.Request, req CreateUserRequest, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicateEmail) {
		status = http.StatusBadRequest
	} else {
		h.logger.Error("create user failed", slog.Any("error", err))
	}
	h.render(w, r, "pages/users/form.html", map[string]any{
		"Errors": formErrors{"general": flashMessage(err)},
		"Form":   map[string]string{"Email": req.Email, "Name": req.Name, "Role": req.Role},
		"Roles":  ValidRoles,
	}, status)
}

func flashMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateEmail):
		return strings.TrimPrefix(err.Error(), "users: ")
	case errors.Is(err, ErrNotFound):
		return "user not found"
	default:
		return "something went wrong"
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
