package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes the bun backed stores and schema management.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Migrate(ctx context.Context) error
	Users() *UsersRepository
}

type mngr struct {
	db    *bun.DB
	users *UsersRepository
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:    db,
		users: NewUsersRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// Migrate creates the users table and the lookup indexes for pending
// contact values. It is safe to run repeatedly.
func (m mngr) Migrate(ctx context.Context) error {
	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().
			Model((*User)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}

		for name, column := range map[string]string{
			"users_requested_email_idx":  "requested_email",
			"users_requested_mobile_idx": "requested_mobile",
		} {
			if _, err := tx.NewCreateIndex().
				Model((*User)(nil)).
				Index(name).
				Column(column).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}

func (m mngr) Users() *UsersRepository {
	return m.users
}
