package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/scheduling"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

type Scheduler interface {
	Schedule(ctx context.Context, req scheduling.Request) (scheduling.Result, error)
}

type Jobs interface {
	Enqueue(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
}

// Engine is the part of the aggregation engine applied synchronously by the
// API.
type Engine interface {
	CheckIn(ctx context.Context, empID, eventID string) error
	RecordActivity(ctx context.Context, empID string, a wellness.Activity, eventID string) error
	Register(ctx context.Context, p wellness.Profile) (bool, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	scheduler Scheduler
	jobs      Jobs
	engine    Engine
	checks    map[string]HealthCheck
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(s Scheduler, jobs Jobs, engine Engine, checks map[string]HealthCheck, logger *slog.Logger) *Server {
	return &Server{
		scheduler: s,
		jobs:      jobs,
		engine:    engine,
		checks:    checks,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/notifications", s.scheduleNotification)
		r.Post("/chat-events", s.submitChatEvent)
		r.Post("/check-ins", s.checkIn)
		r.Post("/activities", s.recordActivity)
		r.Post("/employees", s.registerEmployee)
		r.Get("/jobs/{id}", s.getJob)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindPermanentRecipient:
		return http.StatusNotFound
	case apperr.KindConcurrencyConflict:
		return http.StatusConflict
	case apperr.KindTransientDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: string(kind)})
}

// decode reads a JSON body and runs struct validation.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body: " + err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ok": healthy, "checks": status})
}

// scheduleNotification never fails the call for a rejected request; the
// rejection is reported in the body.
func (s *Server) scheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req ScheduleNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, ScheduleNotificationResponse{Reason: scheduling.ReasonInvalid})
		return
	}

	var notBefore time.Time
	if req.Timestamp > 0 {
		notBefore = time.Unix(req.Timestamp, 0)
	}
	res, err := s.scheduler.Schedule(r.Context(), scheduling.Request{
		Recipient: req.EmpID,
		Email:     req.EmailAddress,
		Name:      req.EmployeeName,
		Message:   req.Message,
		NotBefore: notBefore,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleNotificationResponse{Success: res.Accepted, JobID: res.JobID, Reason: res.Reason})
}

// submitChatEvent enqueues the event for the worker and returns at once.
func (s *Server) submitChatEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitChatEventRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	payload, err := job.Encode(job.ChatEventPayload{
		EventID:           req.EventID,
		EmpID:             req.EmpID,
		CurrentMood:       req.CurrentMood,
		IsEscalated:       req.IsEscalated,
		BriefSummary:      req.BriefSummary,
		MoodScorePercent:  req.MoodScorePercent,
		UserChat:          req.UserChat,
		BotChat:           req.BotChat,
		WellnessScore:     *req.WellnessScore,
		MoodAnalysis:      req.MoodAnalysis,
		RecommendedAction: req.RecommendedAction,
		DetailedAnalysis:  req.DetailedAnalysis,
		OccurredAt:        s.now().UTC(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	j := &job.Job{Type: job.TypeChatEvent, Recipient: req.EmpID, Payload: payload}
	if err := s.jobs.Enqueue(r.Context(), j); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("chat event accepted", "job_id", j.ID, "event_id", req.EventID, "emp_id", req.EmpID)
	writeJSON(w, http.StatusAccepted, SubmitChatEventResponse{Accepted: true, JobID: j.ID})
}

func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	if err := s.engine.CheckIn(r.Context(), req.EmpID, req.EventID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{OK: true})
}

func (s *Server) recordActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	a := wellness.Activity{
		TeamMessages:     req.TeamMessages,
		EmailsSent:       req.EmailsSent,
		MeetingsAttended: req.MeetingsAttended,
		WorkHours:        req.WorkHours,
	}
	if err := s.engine.RecordActivity(r.Context(), req.EmpID, a, req.EventID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{OK: true})
}

func (s *Server) registerEmployee(w http.ResponseWriter, r *http.Request) {
	var p wellness.Profile
	if err := s.decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.engine.Register(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, RegisterEmployeeResponse{Created: created})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, r, apperr.Validation("job id must be a UUID"))
		return
	}
	j, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// ListenAndServe serves the router on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
