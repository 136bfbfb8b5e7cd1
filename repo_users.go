package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const maxUpdateAttempts = 5

var errVersionConflict = errors.New("user record changed concurrently")

// UsersRepository is the bun backed UserStore. Updates use the version
// column as an optimistic lock and retry on conflict, so a read-modify-write
// never overwrites a concurrent one.
type UsersRepository struct {
	base   repository.Repository[*User]
	db     *bun.DB
	logger Logger
	now    func() time.Time
}

var _ UserStore = (*UsersRepository)(nil)

func NewUsersRepository(db *bun.DB) *UsersRepository {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &UsersRepository{
		base:   repo,
		db:     db,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (r *UsersRepository) WithLogger(logger Logger) *UsersRepository {
	r.logger = normalizeLogger(logger)
	return r
}

func (r *UsersRepository) FetchByUsername(ctx context.Context, username string) (*User, error) {
	return r.fetchBy(ctx, r.db, "username", username)
}

func (r *UsersRepository) FetchByEmail(ctx context.Context, email string) (*User, error) {
	return r.fetchContact(ctx, "email", "requested_email", email)
}

func (r *UsersRepository) FetchByMobile(ctx context.Context, mobile string) (*User, error) {
	return r.fetchContact(ctx, "mobile", "requested_mobile", mobile)
}

func (r *UsersRepository) FetchByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := r.base.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, notFound("id", id.String())
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch user")
	}
	return user, nil
}

func (r *UsersRepository) Create(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	record := user.Clone()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := r.now()
	record.CreatedAt = &now
	record.UpdatedAt = &now
	record.Version = 1

	var created *User
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.checkUnique(ctx, tx, record); err != nil {
			return err
		}
		var err error
		created, err = r.base.CreateTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, storeError(err, "could not create user")
	}

	return created, nil
}

func (r *UsersRepository) Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		updated, err := r.updateOnce(ctx, id, fn)
		if errors.Is(err, errVersionConflict) {
			r.logger.Debug("user update version conflict, retrying", "user_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, storeError(err, "could not update user")
		}
		return updated, nil
	}

	return nil, goerrors.New("user update kept conflicting", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{"user_id": id.String()})
}

func (r *UsersRepository) updateOnce(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error) {
	var updated *User

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := r.fetchBy(ctx, tx, "id", id.String())
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = cloneTime(current.CreatedAt)

		if err := r.checkUnique(ctx, tx, next); err != nil {
			return err
		}

		now := r.now()
		next.UpdatedAt = &now
		next.Version = current.Version + 1

		res, err := tx.NewUpdate().
			Model(next).
			ExcludeColumn("id", "created_at").
			Where("?TableAlias.id = ?", current.ID).
			Where("?TableAlias.version = ?", current.Version).
			Exec(ctx)
		if err != nil {
			return err
		}

		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return errVersionConflict
		}

		updated = next
		return nil
	})

	return updated, err
}

func (r *UsersRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return notFound("id", id.String())
	}
	return nil
}

func (r *UsersRepository) fetchContact(ctx context.Context, confirmedColumn, pendingColumn, value string) (*User, error) {
	user, err := r.fetchBy(ctx, r.db, confirmedColumn, value)
	if err == nil || !goerrors.IsNotFound(err) {
		return user, err
	}
	return r.fetchBy(ctx, r.db, pendingColumn, value)
}

func (r *UsersRepository) fetchBy(ctx context.Context, db bun.IDB, column, value string) (*User, error) {
	if value == "" {
		return nil, notFound(column, value)
	}

	record := &User{}
	err := db.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(column, value)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch user")
	}

	return record, nil
}

func (r *UsersRepository) checkUnique(ctx context.Context, db bun.IDB, record *User) error {
	fields := FieldErrors{}
	checks := []struct {
		column  string
		value   string
		message string
	}{
		{column: "username", value: record.Username, message: MessageUsernameTaken},
		{column: "email", value: record.Email, message: MessageEmailTaken},
		{column: "mobile", value: record.Mobile, message: MessageMobileTaken},
	}

	for _, check := range checks {
		if check.value == "" {
			continue
		}
		exists, err := db.NewSelect().
			Model((*User)(nil)).
			Where(fmt.Sprintf("?TableAlias.%s = ?", check.column), check.value).
			Where("?TableAlias.id != ?", record.ID).
			Exists(ctx)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check uniqueness")
		}
		if exists {
			fields.Add(check.column, check.message)
		}
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// storeError passes domain errors through and wraps anything else.
func storeError(err error, message string) error {
	if errors.Is(err, errVersionConflict) {
		return err
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
