package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type UserRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewUserRepository(q db.Querier, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: q, logger: logger}
}

const userColumns = `id, email, username, display_name, password_hash, locale, created_at`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Locale, &u.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// Insert 创建用户；email 或 username 重复时返回 ErrDuplicate
func (r *UserRepository) Insert(ctx context.Context, u *model.User) error {
	r.logger.Debug("Inserting user", zap.String("username", u.Username))
	query := `
        INSERT INTO users (id, email, username, display_name, password_hash, locale)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		u.ID, strings.ToLower(u.Email), u.Username, u.DisplayName, u.PasswordHash, u.Locale,
	).Scan(&u.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert user", zap.Error(err), zap.String("username", u.Username))
		return translate(err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email)))
}

// FindByUsernames 大小写不敏感地解析用户名，未知用户名被忽略
func (r *UserRepository) FindByUsernames(ctx context.Context, usernames []string) ([]model.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = ANY($1)`
	rows, err := r.db.Query(ctx, query, usernames)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
