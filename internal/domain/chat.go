package domain

import "time"

type ChatMessage struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}
