package domain

import "time"

type TaskStatus string

const (
	TaskTodo  TaskStatus = "todo"
	TaskDoing TaskStatus = "doing"
	TaskDone  TaskStatus = "done"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

const DefaultAssignee = "Unassigned"

type Task struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DueDate     *time.Time   `json:"due_date"`
	Priority    TaskPriority `json:"priority"`
	Assignee    string       `json:"assignee"`
	Status      TaskStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type CreateTaskRequest struct {
	Title       string       `json:"title" validate:"required,min=1,max=200"`
	Description string       `json:"description" validate:"max=2000"`
	DueDate     *time.Time   `json:"due_date"`
	Priority    TaskPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
	Assignee    string       `json:"assignee" validate:"max=100"`
	Status      TaskStatus   `json:"status" validate:"omitempty,oneof=todo doing done"`
}

type UpdateTaskRequest struct {
	Title       *string       `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string       `json:"description" validate:"omitempty,max=2000"`
	DueDate     *time.Time    `json:"due_date"`
	Priority    *TaskPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
	Assignee    *string       `json:"assignee" validate:"omitempty,max=100"`
}

type MoveTaskRequest struct {
	Status TaskStatus `json:"status" validate:"required,oneof=todo doing done"`
}
