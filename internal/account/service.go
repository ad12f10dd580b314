// Package account handles registration and credential checks.  A driver
// account and its ambulance are created in the same transaction, so a
// driver never exists without one.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/repository"
	"github.com/iliyamo/ambulance-dispatch/internal/utils"
)

// RegisterInput is the data a new account is created from.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Service registers and authenticates users.
type Service struct {
	store      repository.Store
	bcryptCost int
	log        *zap.Logger
}

func NewService(store repository.Store, bcryptCost int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, bcryptCost: bcryptCost, log: log.Named("account")}
}

// Register creates the account.  For drivers an active ambulance is
// inserted in the same transaction.  Username and email are checked up
// front for a friendly error, but the unique keys decide.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("%w: username, email and password are required", apperr.ErrValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.User{}, fmt.Errorf("%w: invalid email address", apperr.ErrValidation)
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return model.User{}, fmt.Errorf("%w: role must be patient or driver", apperr.ErrValidation)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{Username: username, Email: email, PasswordHash: hash, Role: role}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUserByUsername(ctx, username); err == nil {
			return fmt.Errorf("%w: username already taken", apperr.ErrConflict)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := tx.GetUserByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if err := tx.CreateUser(ctx, &user); err != nil {
			switch {
			case errors.Is(err, repository.ErrUsernameExists):
				return fmt.Errorf("%w: username already taken", apperr.ErrConflict)
			case errors.Is(err, repository.ErrEmailExists):
				return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
			}
			return err
		}
		if role == model.RoleDriver {
			amb := model.Ambulance{DriverID: user.ID, Status: model.AmbulanceActive}
			if err := tx.CreateAmbulance(ctx, &amb); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.User{}, apperr.Classify(err)
	}
	s.log.Info("user registered", zap.Uint64("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Authenticate returns the user whose email and password match.  Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.User{}, fmt.Errorf("%w: email and password are required", apperr.ErrValidation)
	}
	var u model.User
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, apperr.Classify(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	return u, nil
}

// Profile returns the stored user.
func (s *Service) Profile(ctx context.Context, userID uint64) (model.User, error) {
	var u model.User
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.GetUserByID(ctx, userID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("%w: user %d", apperr.ErrNotFound, userID)
	}
	if err != nil {
		return model.User{}, apperr.Classify(err)
	}
	return u, nil
}
