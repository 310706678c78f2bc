package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"hireflow/agreement"
	"hireflow/auth"
	"hireflow/hiring"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "user_id"
	ctxKeyRole   ctxKey = "role"
)

const maxBodyBytes = 1 << 20

type agreementService interface {
	CreateFromApplication(ctx context.Context, applicationID string, terms agreement.TermsInput) (agreement.Agreement, error)
	CreateFromOffer(ctx context.Context, offerID string, terms agreement.TermsInput) (agreement.Agreement, error)
	Accept(ctx context.Context, agreementID string, actor agreement.Actor) (agreement.Agreement, error)
	Reject(ctx context.Context, agreementID string, actor agreement.Actor, reason string) (agreement.Agreement, error)
	Withdraw(ctx context.Context, agreementID string, actor agreement.Actor, reason string) (agreement.Agreement, error)
	Complete(ctx context.Context, agreementID string, actor agreement.Actor) (agreement.Agreement, error)
	RequestModification(ctx context.Context, agreementID string, actor agreement.Actor, data agreement.ModificationData) (agreement.Request, error)
	RespondToModification(ctx context.Context, agreementID, requestID string, actor agreement.Actor, decision agreement.Decision, message string) (bool, error)
	RequestTermination(ctx context.Context, agreementID string, actor agreement.Actor, data agreement.TerminationData) (agreement.Request, error)
	RespondToTermination(ctx context.Context, agreementID, requestID string, actor agreement.Actor, decision agreement.Decision, message string) (bool, error)
	LogWork(ctx context.Context, agreementID string, actor agreement.Actor, in agreement.WorkInput) (agreement.WorkLog, error)
	ApproveWork(ctx context.Context, workLogID string, actor agreement.Actor, paymentMethod string) (agreement.Payment, error)
	RejectWork(ctx context.Context, workLogID string, actor agreement.Actor, reason string) (agreement.WorkLog, error)
	GetAgreement(ctx context.Context, id string) (agreement.Agreement, error)
	GetUserAgreements(ctx context.Context, userID string) ([]agreement.Agreement, error)
	HasAgreementForApplication(ctx context.Context, applicationID string) (bool, error)
	HasAgreementForOffer(ctx context.Context, offerID string) (bool, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type hiringService interface {
	AcceptApplication(ctx context.Context, id, employerID string) (hiring.Application, error)
	RejectApplication(ctx context.Context, id, employerID string) (hiring.Application, error)
	RespondToOffer(ctx context.Context, id, workerID string, accept bool) (hiring.Offer, error)
	ListApplications(ctx context.Context, filters hiring.Filters) ([]hiring.Application, error)
	ListOffers(ctx context.Context, filters hiring.Filters) ([]hiring.Offer, error)
}

// Server exposes the agreement lifecycle over HTTP.
type Server struct {
	agreements agreementService
	sources    agreement.SourceReader
	auth       authService
	hiring     hiringService
	logger     *slog.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/api/applications", s.handleListApplications)
		r.Get("/api/offers", s.handleListOffers)
		r.Post("/api/applications/{id}/accept", s.handleApplicationDecision(true))
		r.Post("/api/applications/{id}/reject", s.handleApplicationDecision(false))
		r.Post("/api/applications/{id}/agreement", s.handleCreateAgreement(agreement.SourceApplication))
		r.Post("/api/offers/{id}/accept", s.handleOfferDecision(true))
		r.Post("/api/offers/{id}/decline", s.handleOfferDecision(false))
		r.Post("/api/offers/{id}/agreement", s.handleCreateAgreement(agreement.SourceOffer))

		r.Route("/api/agreements", func(r chi.Router) {
			r.Get("/", s.handleListAgreements)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAgreement)
				r.Post("/accept", s.handleAccept)
				r.Post("/reject", s.handleReject)
				r.Post("/withdraw", s.handleWithdraw)
				r.Post("/complete", s.handleComplete)
				r.Post("/modifications", s.handleRequestModification)
				r.Post("/modifications/{requestID}/responses", s.handleRespond(agreement.KindModification))
				r.Post("/terminations", s.handleRequestTermination)
				r.Post("/terminations/{requestID}/responses", s.handleRespond(agreement.KindTermination))
				r.Post("/work-logs", s.handleLogWork)
			})
		})

		r.Post("/api/work-logs/{id}/approve", s.handleApproveWork)
		r.Post("/api/work-logs/{id}/reject", s.handleRejectWork)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom builds the agreement actor from the authenticated request.
// Roles other than employer and worker map to an empty role and are refused
// by role-checked operations.
func actorFrom(r *http.Request) agreement.Actor {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	actor := agreement.Actor{UserID: userID}
	switch role {
	case auth.RoleEmployer:
		actor.Role = agreement.RoleEmployer
	case auth.RoleWorker:
		actor.Role = agreement.RoleWorker
	}
	return actor
}

type registerResponse struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
	Role     auth.Role `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": res.Token,
		"user":  registerResponse{ID: res.User.ID, Email: res.User.Email, FullName: res.User.FullName, Role: res.User.Role},
	})
}

// listFilters scopes a hiring listing to the caller's side of the record.
func listFilters(w http.ResponseWriter, r *http.Request) (hiring.Filters, bool) {
	actor := actorFrom(r)
	q := r.URL.Query()
	f := hiring.Filters{Status: hiring.Status(strings.TrimSpace(q.Get("status")))}
	switch actor.Role {
	case agreement.RoleEmployer:
		f.EmployerID = actor.UserID
	case agreement.RoleWorker:
		f.WorkerID = actor.UserID
	default:
		writeError(w, http.StatusForbidden, "only employers and workers list hiring records")
		return f, false
	}
	for param, dst := range map[string]*int{"page": &f.Page, "page_size": &f.PageSize} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, param+" must be a positive integer")
			return f, false
		}
		*dst = n
	}
	return f, true
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilters(w, r)
	if !ok {
		return
	}
	list, err := s.hiring.ListApplications(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "total": len(list)})
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilters(w, r)
	if !ok {
		return
	}
	list, err := s.hiring.ListOffers(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "total": len(list)})
}

func (s *Server) handleApplicationDecision(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if actor.Role != agreement.RoleEmployer {
			writeError(w, http.StatusForbidden, "only employers decide on applications")
			return
		}
		decide := s.hiring.RejectApplication
		if accept {
			decide = s.hiring.AcceptApplication
		}
		app, err := decide(r.Context(), chi.URLParam(r, "id"), actor.UserID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": app.ID, "status": app.Status})
	}
}

func (s *Server) handleOfferDecision(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)
		if actor.Role != agreement.RoleWorker {
			writeError(w, http.StatusForbidden, "only workers respond to offers")
			return
		}
		offer, err := s.hiring.RespondToOffer(r.Context(), chi.URLParam(r, "id"), actor.UserID, accept)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": offer.ID, "status": offer.Status})
	}
}

func (s *Server) handleCreateAgreement(kind agreement.SourceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		actor := actorFrom(r)

		src, err := s.sources.Source(ctx, kind, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if src.EmployerID != actor.UserID && src.WorkerID != actor.UserID {
			writeError(w, http.StatusForbidden, "not a party to this "+string(kind))
			return
		}

		var terms agreement.TermsInput
		if !decodeOptionalBody(w, r, &terms) {
			return
		}

		exists := s.agreements.HasAgreementForApplication
		create := s.agreements.CreateFromApplication
		if kind == agreement.SourceOffer {
			exists = s.agreements.HasAgreementForOffer
			create = s.agreements.CreateFromOffer
		}

		found, err := exists(ctx, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if found {
			writeError(w, http.StatusConflict, "an agreement already exists for this "+string(kind))
			return
		}

		created, err := create(ctx, id, terms)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	list, err := s.agreements.GetUserAgreements(r.Context(), actorFrom(r).UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list, "total": len(list)})
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	a, err := s.agreements.GetAgreement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !a.HasParty(actorFrom(r).UserID) {
		writeError(w, http.StatusNotFound, "agreement not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	a, err := s.agreements.Accept(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	s.writeResult(w, r, a, err)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body reasonBody
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	a, err := s.agreements.Reject(r.Context(), chi.URLParam(r, "id"), actorFrom(r), body.Reason)
	s.writeResult(w, r, a, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body reasonBody
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	a, err := s.agreements.Withdraw(r.Context(), chi.URLParam(r, "id"), actorFrom(r), body.Reason)
	s.writeResult(w, r, a, err)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	a, err := s.agreements.Complete(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	s.writeResult(w, r, a, err)
}

func (s *Server) handleRequestModification(w http.ResponseWriter, r *http.Request) {
	var data agreement.ModificationData
	if !decodeBody(w, r, &data) {
		return
	}
	req, err := s.agreements.RequestModification(r.Context(), chi.URLParam(r, "id"), actorFrom(r), data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleRequestTermination(w http.ResponseWriter, r *http.Request) {
	var data agreement.TerminationData
	if !decodeBody(w, r, &data) {
		return
	}
	req, err := s.agreements.RequestTermination(r.Context(), chi.URLParam(r, "id"), actorFrom(r), data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type responseBody struct {
	Decision agreement.Decision `json:"decision"`
	Message  string             `json:"message"`
}

func (s *Server) handleRespond(kind agreement.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body responseBody
		if !decodeBody(w, r, &body) {
			return
		}
		respond := s.agreements.RespondToModification
		if kind == agreement.KindTermination {
			respond = s.agreements.RespondToTermination
		}
		ok, err := respond(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "requestID"), actorFrom(r), body.Decision, body.Message)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusConflict, map[string]any{"recorded": false, "error": "request is not open for this response"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recorded": true})
	}
}

func (s *Server) handleLogWork(w http.ResponseWriter, r *http.Request) {
	var in agreement.WorkInput
	if !decodeBody(w, r, &in) {
		return
	}
	wl, err := s.agreements.LogWork(r.Context(), chi.URLParam(r, "id"), actorFrom(r), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (s *Server) handleApproveWork(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	p, err := s.agreements.ApproveWork(r.Context(), chi.URLParam(r, "id"), actorFrom(r), body.PaymentMethod)
	s.writeResult(w, r, p, err)
}

func (s *Server) handleRejectWork(w http.ResponseWriter, r *http.Request) {
	var body reasonBody
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	wl, err := s.agreements.RejectWork(r.Context(), chi.URLParam(r, "id"), actorFrom(r), body.Reason)
	s.writeResult(w, r, wl, err)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agreement.ErrNotFound),
		errors.Is(err, hiring.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, agreement.ErrInvalidState),
		errors.Is(err, agreement.ErrAlreadyProcessed),
		errors.Is(err, agreement.ErrDuplicateAgreement),
		errors.Is(err, agreement.ErrDuplicateWorkLog),
		errors.Is(err, hiring.ErrInvalidState),
		errors.Is(err, hiring.ErrDuplicate),
		errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, agreement.ErrValidationFailed),
		errors.Is(err, hiring.ErrInvalid),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, agreement.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body and leaves dst untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
