package planner

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/studyforge/planner-adapter/pkg/model"
)

// Wire types mirror the platform API payloads exactly. Mapping to the
// canonical pkg/model types happens in the client, never in handlers.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type statsResponse struct {
	StreakDays      int              `json:"study_streak_days"`
	HoursStudied    decimal.Decimal  `json:"hours_studied"`
	TopicsCompleted int              `json:"topics_completed"`
	TopicsTotal     int              `json:"topics_total"`
	QuizAverage     *decimal.Decimal `json:"quiz_average_percent"`
}

type planChapter struct {
	Status string `json:"status"`
}

type studyPlanResponse struct {
	ID         string        `json:"id"`
	ExamType   string        `json:"exam_type"`
	TargetDate string        `json:"target_date"`
	DailyHours int           `json:"daily_hours"`
	Status     string        `json:"status"`
	Chapters   []planChapter `json:"chapters"`
	CreatedAt  time.Time     `json:"created_at"`
}

// quizHistoryEntry tolerates the platform's numeric quirks: question counts
// arrive as JSON floats.
type quizHistoryEntry struct {
	ID             string          `json:"id"`
	Topic          string          `json:"topic"`
	Subject        string          `json:"subject"`
	Score          decimal.Decimal `json:"score"`
	TotalQuestions float64         `json:"total_questions"`
	CorrectAnswers float64         `json:"correct_answers"`
	CompletedAt    time.Time       `json:"completed_at"`
}

// EngagementRequest records one interaction with a piece of content.
type EngagementRequest struct {
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id"`
	Action      string `json:"action"`
	Value       int    `json:"value"`
	Comment     string `json:"comment,omitempty"`
}

type engagementResponse struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	Action      string    `json:"action"`
	Value       int       `json:"value"`
	Comment     *string   `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatRequest sends one message to the platform's assistant. SessionID is
// empty on the first message of a conversation.
type ChatRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

type chatResponse struct {
	SessionID string           `json:"session_id"`
	Message   string           `json:"message"`
	Sources   []map[string]any `json:"sources"`
}

func (e engagementResponse) toModel() model.Engagement {
	out := model.Engagement{
		ID:          e.ID,
		ContentType: e.ContentType,
		ContentID:   e.ContentID,
		Action:      e.Action,
		Value:       e.Value,
		CreatedAt:   e.CreatedAt,
	}
	if e.Comment != nil {
		out.Comment = *e.Comment
	}
	return out
}

func (q quizHistoryEntry) toModel() model.QuizAttempt {
	return model.QuizAttempt{
		ID:             q.ID,
		Topic:          q.Topic,
		Subject:        q.Subject,
		Score:          q.Score,
		TotalQuestions: int(q.TotalQuestions),
		CorrectAnswers: int(q.CorrectAnswers),
		CompletedAt:    q.CompletedAt,
	}
}

func (p studyPlanResponse) toModel() model.StudyPlanSummary {
	return model.StudyPlanSummary{
		ID:         p.ID,
		ExamType:   p.ExamType,
		TargetDate: p.TargetDate,
		DailyHours: p.DailyHours,
		Status:     p.Status,
		Chapters:   len(p.Chapters),
		CreatedAt:  p.CreatedAt,
	}
}
