package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// UserRepo reads and writes the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,role,lat,lng,location_updated_at,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u        model.User
		role     string
		lat, lng sql.NullFloat64
		locAt    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role,
		&lat, &lng, &locAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	if lat.Valid && lng.Valid {
		u.Location = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if locAt.Valid {
		t := locAt.Time
		u.LocationUpdatedAt = &t
	}
	return u, nil
}

// CreateTx inserts u (with an already hashed password) and fills in its
// ID and timestamps.  Unique-key violations come back as
// ErrUsernameExists or ErrEmailExists.
func (r *UserRepo) CreateTx(ctx context.Context, tx *sql.Tx, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, string(u.Role))
	if err != nil {
		return duplicateUserErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByIDTx(ctx, tx, uint64(id), false)
	if err != nil {
		return err
	}
	*u = created
	return nil
}

// GetByIDTx fetches a user by id, optionally locking the row.
func (r *UserRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (model.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	return scanUser(tx.QueryRowContext(ctx, q, id))
}

// GetByEmailTx fetches a user by normalized email.
func (r *UserRepo) GetByEmailTx(ctx context.Context, tx *sql.Tx, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByUsernameTx fetches a user by username.
func (r *UserRepo) GetByUsernameTx(ctx context.Context, tx *sql.Tx, username string) (model.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", strings.TrimSpace(username)))
}

// UpdateLocationTx overwrites the user's last reported position.
// Concurrent updates are last-write-wins.
func (r *UserRepo) UpdateLocationTx(ctx context.Context, tx *sql.Tx, id uint64, c model.Coordinates, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET lat=?, lng=?, location_updated_at=? WHERE id=?",
		c.Lat, c.Lng, at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when the values are unchanged, so
		// confirm the row exists before calling it missing.
		var one int
		return tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one)
	}
	return nil
}
