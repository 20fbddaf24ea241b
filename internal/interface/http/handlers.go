package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/practice-hub/practice-hub/internal/application/command"
	"github.com/practice-hub/practice-hub/internal/application/query"
	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status, nil)
		return
	}
	writeJSON(w, r, http.StatusOK, status, nil)
}

// handleReady handles GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message, "")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE DATA
// ══════════════════════════════════════════════════════════════════════════════

// ExerciseDTO is the wire form of practice.Exercise.
type ExerciseDTO struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Description            string `json:"description,omitempty"`
	SegmentID              string `json:"segment_id,omitempty"`
	DefaultTempo           int    `json:"default_tempo,omitempty"`
	DefaultDurationSeconds int    `json:"default_duration_seconds,omitempty"`
}

// SegmentDTO is the wire form of practice.Segment.
type SegmentDTO struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// handleListExercises handles GET /api/v1/exercises
func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := s.deps.Exercises.ListExercises(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to list exercises")
		return
	}

	out := make([]ExerciseDTO, 0, len(exercises))
	for _, ex := range exercises {
		out = append(out, ExerciseDTO{
			ID:                     ex.ID,
			Name:                   ex.Name,
			Description:            ex.Description,
			SegmentID:              ex.SegmentID,
			DefaultTempo:           ex.DefaultTempo,
			DefaultDurationSeconds: ex.DefaultDurationSeconds,
		})
	}
	writeJSON(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

// handleListSegments handles GET /api/v1/segments
func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := s.deps.Exercises.ListSegments(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to list segments")
		return
	}

	out := make([]SegmentDTO, 0, len(segments))
	for _, seg := range practice.SortedSegments(segments) {
		dto := SegmentDTO{ID: seg.ID, Name: seg.Name, Order: seg.Order}
		if !seg.StartDate.IsZero() {
			start := seg.StartDate
			dto.StartDate = &start
		}
		if !seg.EndDate.IsZero() {
			end := seg.EndDate
			dto.EndDate = &end
		}
		out = append(out, dto)
	}
	writeJSON(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SessionDTO is the wire form of practice.Session.
type SessionDTO struct {
	ID              string    `json:"id"`
	ExerciseID      string    `json:"exercise_id"`
	Tempo           int       `json:"tempo"`
	DurationSeconds int       `json:"duration_seconds"`
	PracticedAt     time.Time `json:"practiced_at"`
	ReadyForFaster  bool      `json:"ready_for_faster"`
}

func toSessionDTO(s practice.Session) SessionDTO {
	return SessionDTO{
		ID:              s.ID,
		ExerciseID:      s.ExerciseID,
		Tempo:           s.Tempo.Int(),
		DurationSeconds: s.DurationSeconds.Int(),
		PracticedAt:     s.PracticedAt,
		ReadyForFaster:  s.ReadyForFaster,
	}
}

// RecordSessionRequest is the body of POST /api/v1/sessions.
type RecordSessionRequest struct {
	ExerciseID      string     `json:"exercise_id"`
	Tempo           int        `json:"tempo"`
	DurationSeconds int        `json:"duration_seconds"`
	PracticedAt     *time.Time `json:"practiced_at,omitempty"`
	ReadyForFaster  bool       `json:"ready_for_faster"`
}

// RecordSessionResponse is returned by POST /api/v1/sessions.
type RecordSessionResponse struct {
	Session SessionDTO `json:"session"`

	// NewlyUnlocked lists the unlocks this session caused.
	NewlyUnlocked []UnlockDTO `json:"newly_unlocked"`

	// ReconcilePending is true when reconciliation did not complete; the next
	// trigger picks the unlocks up.
	ReconcilePending bool `json:"reconcile_pending,omitempty"`
}

// UnlockDTO is the wire form of achievement.UnlockRecord.
type UnlockDTO struct {
	ID         string    `json:"id"`
	RuleID     string    `json:"rule_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

func toUnlockDTOs(records []achievement.UnlockRecord) []UnlockDTO {
	out := make([]UnlockDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, UnlockDTO{ID: rec.ID, RuleID: rec.RuleID, UnlockedAt: rec.UnlockedAt})
	}
	return out
}

// handleListSessions handles GET /api/v1/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.ListSessions(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to list sessions")
		return
	}

	out := make([]SessionDTO, 0, len(sessions))
	for _, sess := range practice.SortedByTime(sessions) {
		out = append(out, toSessionDTO(sess))
	}
	writeJSON(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

// handleRecordSession handles POST /api/v1/sessions
func (s *Server) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	var req RecordSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err, "Invalid request body")
		return
	}

	cmd := command.RecordSessionCommand{
		ExerciseID:      req.ExerciseID,
		Tempo:           req.Tempo,
		DurationSeconds: req.DurationSeconds,
		ReadyForFaster:  req.ReadyForFaster,
		CorrelationID:   middleware.GetReqID(r.Context()),
	}
	if req.PracticedAt != nil {
		cmd.PracticedAt = *req.PracticedAt
	}

	result, err := s.deps.RecordSession.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to record session")
		return
	}

	resp := RecordSessionResponse{
		Session:       toSessionDTO(result.Session),
		NewlyUnlocked: []UnlockDTO{},
	}
	if result.Flow != nil {
		resp.NewlyUnlocked = toUnlockDTOs(result.Flow.Reconcile.NewlyUnlocked)
		resp.ReconcilePending = len(result.Flow.Reconcile.Failures) > 0
	}
	if result.FlowErr != nil {
		resp.ReconcilePending = true
	}
	writeJSON(w, r, http.StatusCreated, resp, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetAchievements handles GET /api/v1/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	q := query.GetAchievementProgressQuery{
		Category:     r.URL.Query().Get("category"),
		UnlockedOnly: getQueryParamBool(r, "unlocked"),
	}

	result, err := s.deps.GetProgress.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to evaluate achievements")
		return
	}
	writeJSON(w, r, http.StatusOK, result, &ResponseMeta{TotalCount: len(result.Achievements)})
}

// handleListUnlocked handles GET /api/v1/achievements/unlocked
func (s *Server) handleListUnlocked(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Unlocks.ListUnlocks(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err, "Failed to list unlocks")
		return
	}
	achievement.SortByUnlockedAt(records)
	writeJSON(w, r, http.StatusOK, toUnlockDTOs(records), &ResponseMeta{TotalCount: len(records)})
}

// UnlockRequest is the body of POST /api/v1/achievements/unlocked.
type UnlockRequest struct {
	RuleID     string     `json:"rule_id"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// handleUnlockAchievement handles POST /api/v1/achievements/unlocked.
// A rule that already has a record answers 409.
func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err, "Invalid request body")
		return
	}

	cmd := command.UnlockAchievementCommand{
		RuleID:        req.RuleID,
		CorrelationID: middleware.GetReqID(r.Context()),
	}
	if req.UnlockedAt != nil {
		cmd.UnlockedAt = *req.UnlockedAt
	}

	rec, err := s.deps.UnlockAchievement.Handle(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, achievement.ErrAlreadyUnlocked) {
			writeJSONError(w, r, http.StatusConflict, "already_unlocked", "Achievement already unlocked", req.RuleID)
			return
		}
		s.writeDomainError(w, r, err, "Failed to unlock achievement")
		return
	}
	writeJSON(w, r, http.StatusCreated, UnlockDTO{ID: rec.ID, RuleID: rec.RuleID, UnlockedAt: rec.UnlockedAt}, nil)
}

// ReconcileResponse is returned by POST /api/v1/achievements/reconcile.
type ReconcileResponse struct {
	RunID           string      `json:"run_id"`
	NewlyUnlocked   []UnlockDTO `json:"newly_unlocked"`
	AlreadyUnlocked []string    `json:"already_unlocked,omitempty"`
	Failures        []string    `json:"failures,omitempty"`
}

// handleReconcile handles POST /api/v1/achievements/reconcile
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Reconcile.Execute(r.Context(), saga.AchievementFlowInput{
		Trigger:       saga.TriggerManual,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err, "Reconciliation failed")
		return
	}

	resp := ReconcileResponse{
		RunID:           result.RunID,
		NewlyUnlocked:   toUnlockDTOs(result.Reconcile.NewlyUnlocked),
		AlreadyUnlocked: result.Reconcile.AlreadyUnlocked,
	}
	for _, f := range result.Reconcile.Failures {
		resp.Failures = append(resp.Failures, f.RuleID)
	}
	writeJSON(w, r, http.StatusOK, resp, nil)
}

// handleRecentUnlocks handles GET /api/v1/achievements/recent?since=<RFC3339>&limit=<n>
func (s *Server) handleRecentUnlocks(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecentUnlocks == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Recent unlock feed not configured", "")
		return
	}

	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339Nano, since)
		if err != nil {
			s.writeDomainError(w, r, fmt.Errorf("%w: since: %v", shared.ErrInvalidFormat, err), "Invalid since parameter")
			return
		}
		entries := s.deps.RecentUnlocks.ReceivedSince(r.Context(), t)
		writeJSON(w, r, http.StatusOK, entries, &ResponseMeta{TotalCount: len(entries)})
		return
	}

	entries := s.deps.RecentUnlocks.Recent(r.Context(), getQueryParamInt(r, "limit", 10))
	writeJSON(w, r, http.StatusOK, entries, &ResponseMeta{TotalCount: len(entries)})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFormat, err)
	}
	return nil
}
