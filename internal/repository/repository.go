package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound 记录不存在（由 pgx.ErrNoRows 或 0 行受影响转换而来）
	ErrNotFound = errors.New("not found")
	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("already exists")
)

type scanner interface {
	Scan(dest ...any) error
}

// translate 把驱动错误映射到仓储层错误
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
