package service

import (
	"context"

	"notemv-server/internal/domain"
	"notemv-server/internal/repository"
)

type TaskService struct {
	tasks  repository.TaskRepository
	access *Access
}

func NewTaskService(tasks repository.TaskRepository, access *Access) *TaskService {
	return &TaskService{tasks: tasks, access: access}
}

func (s *TaskService) Create(ctx context.Context, who domain.Identity, projectID string, req *domain.CreateTaskRequest) (*domain.Task, error) {
	if _, err := s.access.ProjectEditor(ctx, who, projectID); err != nil {
		return nil, err
	}

	task := &domain.Task{
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
		Assignee:    req.Assignee,
		Status:      req.Status,
	}
	if task.Priority == "" {
		task.Priority = domain.PriorityMedium
	}
	if task.Assignee == "" {
		task.Assignee = domain.DefaultAssignee
	}
	if task.Status == "" {
		task.Status = domain.TaskTodo
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, who domain.Identity, projectID string) ([]*domain.Task, error) {
	if _, _, err := s.access.Project(ctx, who, projectID); err != nil {
		return nil, err
	}
	return s.tasks.ListByProject(ctx, projectID)
}

func (s *TaskService) Update(ctx context.Context, who domain.Identity, taskID string, req *domain.UpdateTaskRequest) (*domain.Task, error) {
	task, err := s.editable(ctx, who, taskID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Assignee != nil {
		task.Assignee = *req.Assignee
		if task.Assignee == "" {
			task.Assignee = domain.DefaultAssignee
		}
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Move places the task in another board column.
func (s *TaskService) Move(ctx context.Context, who domain.Identity, taskID string, req *domain.MoveTaskRequest) (*domain.Task, error) {
	task, err := s.editable(ctx, who, taskID)
	if err != nil {
		return nil, err
	}

	task.Status = req.Status
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, who domain.Identity, taskID string) error {
	if _, err := s.editable(ctx, who, taskID); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, taskID)
}

func (s *TaskService) editable(ctx context.Context, who domain.Identity, taskID string) (*domain.Task, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, notFound("task", err)
	}
	if _, err := s.access.ProjectEditor(ctx, who, task.ProjectID); err != nil {
		return nil, err
	}
	return task, nil
}
