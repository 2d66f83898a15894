package service

import (
	"errors"

	"foco/internal/repository"
)

var (
	ErrNotFound           = repository.ErrNotFound
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrPolicyDenied       = errors.New("denied by ai policy")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTooLarge           = errors.New("file too large")
	ErrUnsupportedType    = errors.New("unsupported file type")
)
