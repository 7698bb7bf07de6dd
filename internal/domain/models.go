// Package domain defines the persistence models for challenges, evaluations,
// progress, adaptive recommendations and user-journey events. These types are
// mapped with GORM for schema migration and form the core data layer of the
// platform.
package domain

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Difficulty levels shared by challenges and recommendations.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyExpert       = "expert"
)

// Difficulties is ordered from easiest to hardest.
var Difficulties = []string{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert}

func difficultyRule() validation.Rule {
	return validation.In(DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert)
}

// Challenge statuses.
const (
	ChallengeDraft    = "draft"
	ChallengeActive   = "active"
	ChallengeArchived = "archived"
)

// Challenge event types.
const (
	EventChallengeCreated   = "challenge.created"
	EventChallengeRevised   = "challenge.revised"
	EventChallengePublished = "challenge.published"
	EventChallengeArchived  = "challenge.archived"
)

var categoryCaser = cases.Title(language.English)

// NormalizeCategory trims, collapses inner whitespace and title-cases a
// category so "  data   structures" and "Data Structures" group together.
func NormalizeCategory(s string) string {
	f := strings.Fields(strings.ToLower(s))
	if len(f) == 0 {
		return ""
	}
	return categoryCaser.String(strings.Join(f, " "))
}

// Challenge is a generated exercise owned by a user.
//
// Fields:
//   - UserID: owner the challenge was generated for (indexed).
//   - Category: normalized topic, e.g. "Data Structures".
//   - Difficulty: one of Difficulties.
//   - Status: draft, active or archived.
//   - Content: generated body (prompt, starter code, test cases) as JSON.
//   - Tags: free-form labels as a JSON array.
type Challenge struct {
	Base
	UserID      string         `json:"userId"      gorm:"type:varchar(64);not null;index:idx_challenge_user"`
	Title       string         `json:"title"       gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category"    gorm:"type:varchar(100);index"`
	Difficulty  string         `json:"difficulty"  gorm:"type:varchar(16);not null"`
	Status      string         `json:"status"      gorm:"type:varchar(16);not null"`
	Content     map[string]any `json:"content"     gorm:"type:text;serializer:json"`
	Tags        []string       `json:"tags"        gorm:"type:text;serializer:json"`
}

// TableName returns the database table name for Challenge.
func (Challenge) TableName() string { return "challenges" }

// NewChallenge builds a draft challenge and records challenge.created.
func NewChallenge(userID, title, description, category, difficulty string, content map[string]any, tags []string) *Challenge {
	c := &Challenge{
		UserID:      strings.TrimSpace(userID),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    NormalizeCategory(category),
		Difficulty:  strings.ToLower(strings.TrimSpace(difficulty)),
		Status:      ChallengeDraft,
		Content:     content,
		Tags:        tags,
	}
	c.Record(EventChallengeCreated, map[string]any{
		"userId":     c.UserID,
		"title":      c.Title,
		"category":   c.Category,
		"difficulty": c.Difficulty,
	})
	return c
}

// Revise replaces the editable fields and records challenge.revised.
func (c *Challenge) Revise(title, description, category string, content map[string]any, tags []string) {
	if t := strings.TrimSpace(title); t != "" {
		c.Title = t
	}
	c.Description = strings.TrimSpace(description)
	if cat := NormalizeCategory(category); cat != "" {
		c.Category = cat
	}
	if content != nil {
		c.Content = content
	}
	if tags != nil {
		c.Tags = tags
	}
	c.Record(EventChallengeRevised, map[string]any{"challengeId": c.ID, "userId": c.UserID})
}

// Publish moves a draft to active. Publishing an active challenge is a no-op.
func (c *Challenge) Publish() error {
	switch c.Status {
	case ChallengeActive:
		return nil
	case ChallengeArchived:
		return validation.NewError("status_archived", "archived challenges cannot be published")
	}
	c.Status = ChallengeActive
	c.Record(EventChallengePublished, map[string]any{"challengeId": c.ID, "userId": c.UserID})
	return nil
}

// Archive retires the challenge.
func (c *Challenge) Archive() {
	if c.Status == ChallengeArchived {
		return
	}
	c.Status = ChallengeArchived
	c.Record(EventChallengeArchived, map[string]any{"challengeId": c.ID, "userId": c.UserID})
}

// Validate implements validation.Validatable.
func (c *Challenge) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.Category, validation.Length(0, 100)),
		validation.Field(&c.Difficulty, validation.Required, difficultyRule()),
		validation.Field(&c.Status, validation.Required, validation.In(ChallengeDraft, ChallengeActive, ChallengeArchived)),
	)
}

// Evaluation statuses and events.
const (
	EvaluationPending   = "pending"
	EvaluationCompleted = "completed"

	EventEvaluationSubmitted = "evaluation.submitted"
	EventEvaluationCompleted = "evaluation.completed"
)

// Evaluation is a user's response to a challenge and, once completed, its
// score and structured feedback.
type Evaluation struct {
	Base
	ChallengeID string         `json:"challengeId" gorm:"type:varchar(36);not null;index:idx_eval_challenge"`
	UserID      string         `json:"userId"      gorm:"type:varchar(64);not null;index:idx_eval_user"`
	Response    string         `json:"response"    gorm:"type:text;not null"`
	Score       float64        `json:"score"       gorm:"not null;default:0"`
	Feedback    map[string]any `json:"feedback"    gorm:"type:text;serializer:json"`
	Status      string         `json:"status"      gorm:"type:varchar(16);not null"`
}

// TableName returns the database table name for Evaluation.
func (Evaluation) TableName() string { return "evaluations" }

// NewEvaluation records a pending submission.
func NewEvaluation(challengeID, userID, response string) *Evaluation {
	e := &Evaluation{
		ChallengeID: strings.TrimSpace(challengeID),
		UserID:      strings.TrimSpace(userID),
		Response:    response,
		Status:      EvaluationPending,
	}
	e.Record(EventEvaluationSubmitted, map[string]any{"challengeId": e.ChallengeID, "userId": e.UserID})
	return e
}

// Complete stores the score and feedback and records evaluation.completed.
func (e *Evaluation) Complete(score float64, feedback map[string]any) error {
	if e.Status == EvaluationCompleted {
		return validation.NewError("already_completed", "evaluation is already completed")
	}
	if err := validation.Validate(score, validation.Min(0.0), validation.Max(100.0)); err != nil {
		return validation.Errors{"score": err}
	}
	e.Score = score
	e.Feedback = feedback
	e.Status = EvaluationCompleted
	e.Record(EventEvaluationCompleted, map[string]any{
		"evaluationId": e.ID,
		"challengeId":  e.ChallengeID,
		"userId":       e.UserID,
		"score":        score,
	})
	return nil
}

// Validate implements validation.Validatable.
func (e *Evaluation) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.ChallengeID, validation.Required),
		validation.Field(&e.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&e.Response, validation.Required),
		validation.Field(&e.Score, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&e.Status, validation.Required, validation.In(EvaluationPending, EvaluationCompleted)),
	)
}

// Progress events.
const (
	EventProgressStarted   = "progress.started"
	EventProgressUpdated   = "progress.updated"
	EventProgressMilestone = "progress.milestone"
)

// PassingScore is the minimum score that extends a streak.
const PassingScore = 60.0

// Progress tracks a user's scores. ChallengeID is empty for the user's
// overall progress record; there is at most one record per pair.
type Progress struct {
	Base
	UserID         string     `json:"userId"         gorm:"type:varchar(64);not null;index:idx_progress_user;uniqueIndex:ux_progress_user_challenge,priority:1"`
	ChallengeID    string     `json:"challengeId"    gorm:"type:varchar(36);uniqueIndex:ux_progress_user_challenge,priority:2"`
	Score          float64    `json:"score"          gorm:"not null;default:0"`
	BestScore      float64    `json:"bestScore"      gorm:"not null;default:0"`
	Attempts       int        `json:"attempts"       gorm:"not null;default:0"`
	Level          int        `json:"level"          gorm:"not null;default:0"`
	Streak         int        `json:"streak"         gorm:"not null;default:0"`
	LastActivityAt *time.Time `json:"lastActivityAt"`
}

// TableName returns the database table name for Progress.
func (Progress) TableName() string { return "progress" }

// NewProgress starts a progress record at level 1.
func NewProgress(userID, challengeID string) *Progress {
	p := &Progress{UserID: strings.TrimSpace(userID), ChallengeID: strings.TrimSpace(challengeID), Level: 1}
	p.Record(EventProgressStarted, map[string]any{"userId": p.UserID, "challengeId": p.ChallengeID})
	return p
}

// LevelFor maps a best score to a level between 1 and 5.
func LevelFor(best float64) int {
	lvl := 1 + int(best)/20
	if lvl > 5 {
		lvl = 5
	}
	return lvl
}

// RecordScore registers an attempt. It records progress.updated and, when
// the level rises, progress.milestone.
func (p *Progress) RecordScore(score float64, at time.Time) error {
	if err := validation.Validate(score, validation.Min(0.0), validation.Max(100.0)); err != nil {
		return validation.Errors{"score": err}
	}
	p.Attempts++
	p.Score = score
	if score > p.BestScore {
		p.BestScore = score
	}
	if score >= PassingScore {
		p.Streak++
	} else {
		p.Streak = 0
	}
	at = at.UTC()
	p.LastActivityAt = &at

	prev := p.Level
	p.Level = LevelFor(p.BestScore)
	p.Record(EventProgressUpdated, map[string]any{
		"userId":      p.UserID,
		"challengeId": p.ChallengeID,
		"score":       score,
		"attempts":    p.Attempts,
	})
	if p.Level > prev {
		p.Record(EventProgressMilestone, map[string]any{"userId": p.UserID, "level": p.Level})
	}
	return nil
}

// Validate implements validation.Validatable.
func (p *Progress) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&p.Score, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&p.BestScore, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&p.Attempts, validation.Min(0)),
		validation.Field(&p.Level, validation.Min(0), validation.Max(5)),
		validation.Field(&p.Streak, validation.Min(0)),
	)
}

// Recommendation statuses and events.
const (
	RecommendationPending   = "pending"
	RecommendationAccepted  = "accepted"
	RecommendationDismissed = "dismissed"

	EventRecommendationCreated   = "recommendation.created"
	EventRecommendationAccepted  = "recommendation.accepted"
	EventRecommendationDismissed = "recommendation.dismissed"
)

// Recommendation is an adaptive suggestion of what a user should practice next.
type Recommendation struct {
	Base
	UserID      string   `json:"userId"      gorm:"type:varchar(64);not null;index:idx_rec_user"`
	ChallengeID string   `json:"challengeId" gorm:"type:varchar(36)"`
	Difficulty  string   `json:"difficulty"  gorm:"type:varchar(16);not null"`
	FocusAreas  []string `json:"focusAreas"  gorm:"type:text;serializer:json"`
	Reason      string   `json:"reason"      gorm:"type:text"`
	Status      string   `json:"status"      gorm:"type:varchar(16);not null"`
}

// TableName returns the database table name for Recommendation.
func (Recommendation) TableName() string { return "recommendations" }

// NewRecommendation records a pending recommendation.
func NewRecommendation(userID, challengeID, difficulty, reason string, focus []string) *Recommendation {
	r := &Recommendation{
		UserID:      strings.TrimSpace(userID),
		ChallengeID: challengeID,
		Difficulty:  difficulty,
		FocusAreas:  focus,
		Reason:      reason,
		Status:      RecommendationPending,
	}
	r.Record(EventRecommendationCreated, map[string]any{
		"userId":      r.UserID,
		"challengeId": challengeID,
		"difficulty":  difficulty,
	})
	return r
}

// Accept marks a pending recommendation as accepted.
func (r *Recommendation) Accept() error {
	return r.resolve(RecommendationAccepted, EventRecommendationAccepted)
}

// Dismiss marks a pending recommendation as dismissed.
func (r *Recommendation) Dismiss() error {
	return r.resolve(RecommendationDismissed, EventRecommendationDismissed)
}

func (r *Recommendation) resolve(status, event string) error {
	if r.Status != RecommendationPending {
		return validation.NewError("not_pending", "recommendation is already "+r.Status)
	}
	r.Status = status
	r.Record(event, map[string]any{"recommendationId": r.ID, "userId": r.UserID})
	return nil
}

// Validate implements validation.Validatable.
func (r *Recommendation) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Difficulty, validation.Required, difficultyRule()),
		validation.Field(&r.Reason, validation.Length(0, 1000)),
		validation.Field(&r.Status, validation.Required, validation.In(RecommendationPending, RecommendationAccepted, RecommendationDismissed)),
	)
}

// EventJourneyRecorded is published when a journey entry is stored.
const EventJourneyRecorded = "journey.recorded"

// JourneyEvent is one entry of a user's journey log, derived from other
// domain events.
type JourneyEvent struct {
	Base
	UserID     string         `json:"userId"     gorm:"type:varchar(64);not null;index:idx_journey_user"`
	EventType  string         `json:"eventType"  gorm:"type:varchar(64);not null"`
	Payload    map[string]any `json:"payload"    gorm:"type:text;serializer:json"`
	OccurredAt time.Time      `json:"occurredAt" gorm:"not null"`
}

// TableName returns the database table name for JourneyEvent.
func (JourneyEvent) TableName() string { return "journey_events" }

// NewJourneyEvent builds a journey entry.
func NewJourneyEvent(userID, eventType string, payload map[string]any, at time.Time) *JourneyEvent {
	j := &JourneyEvent{UserID: userID, EventType: eventType, Payload: payload, OccurredAt: at.UTC()}
	j.Record(EventJourneyRecorded, map[string]any{"userId": userID, "eventType": eventType})
	return j
}

// Validate implements validation.Validatable.
func (j *JourneyEvent) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.UserID, validation.Required, validation.Length(1, 64)),
		validation.Field(&j.EventType, validation.Required, validation.Length(1, 64)),
		validation.Field(&j.OccurredAt, validation.Required),
	)
}
