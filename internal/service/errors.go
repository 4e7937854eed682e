package service

import (
	"errors"
	"fmt"

	"notemv-server/internal/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrInvalidCollaborator  = errors.New("invalid collaborator")
	ErrOwnerRequired        = errors.New("only the owner can do this")
	ErrInvalidFolder        = errors.New("invalid folder")
	ErrNotTrashed           = errors.New("item is not in the trash")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserExists           = errors.New("email already registered")
	ErrInvalidToken         = errors.New("invalid token")
	ErrUploadsDisabled      = errors.New("uploads are not configured")
)

// notFound turns a repository miss into ErrNotFound, keeping other errors.
func notFound(what string, err error) error {
	if repository.IsNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
