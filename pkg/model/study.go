package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudyStats is the dashboard aggregate snapshot for the current user.
// Hour and score aggregates use decimals so cached snapshots round-trip
// without float drift.
type StudyStats struct {
	StreakDays      int              `json:"study_streak_days"`
	HoursStudied    decimal.Decimal  `json:"hours_studied"`
	TopicsCompleted int              `json:"topics_completed"`
	TopicsTotal     int              `json:"topics_total"`
	QuizAverage     *decimal.Decimal `json:"quiz_average_percent,omitempty"`
	AsOf            time.Time        `json:"as_of"`
}

// StudyPlanSummary is one study plan as listed to dashboard consumers.
type StudyPlanSummary struct {
	ID         string    `json:"id"`
	ExamType   string    `json:"exam_type"`
	TargetDate string    `json:"target_date"`
	DailyHours int       `json:"daily_hours"`
	Status     string    `json:"status"`
	Chapters   int       `json:"chapters"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuizAttempt is one completed quiz from the user's history.
type QuizAttempt struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	Subject        string          `json:"subject"`
	Score          decimal.Decimal `json:"score"`
	TotalQuestions int             `json:"total_questions"`
	CorrectAnswers int             `json:"correct_answers"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// Engagement is one recorded interaction with a piece of content.
type Engagement struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	Action      string    `json:"action"`
	Value       int       `json:"value"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatReply is the assistant's answer to one chat message.
type ChatReply struct {
	SessionID string           `json:"session_id"`
	Message   string           `json:"message"`
	Sources   []map[string]any `json:"sources,omitempty"`
}
