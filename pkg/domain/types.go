package domain

import "time"

// PDFStatus tracks upstream processing of an uploaded document.
type PDFStatus string

const (
	StatusInProgress PDFStatus = "in_progress"
	StatusFailed     PDFStatus = "failed"
	StatusCompleted  PDFStatus = "completed"
)

// User is an account created at signup. Credits are decremented as the
// assistant consumes tokens on the user's behalf; never hard-deleted.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	TotalCredits int       `json:"total_credits"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChatPDF binds an uploaded PDF to its owner and the upstream assistant and
// vector store provisioned for it. Deletion is a soft flag only.
type ChatPDF struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user"`
	File          string    `json:"file"`
	Status        PDFStatus `json:"status"`
	IsDeleted     bool      `json:"is_deleted"`
	AssistantID   string    `json:"assistant_id"`
	VectorStoreID string    `json:"vector_store_id"`
	NumPages      int       `json:"num_pages,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatMessage is one question/answer exchange on a ChatPDF. The answer is
// empty until streaming completes; token usage is filled once afterwards.
type ChatMessage struct {
	ID         string    `json:"id"`
	ChatPDFID  string    `json:"chat_pdf"`
	UserID     string    `json:"user"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	TokenUsage int       `json:"token_usage"`
	CreatedAt  time.Time `json:"created_at"`
}
