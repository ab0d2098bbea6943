package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Service struct {
	store  Store
	hasher *PasswordHasher
	codec  *TokenCodec
}

func NewService(store Store, hasher *PasswordHasher, codec *TokenCodec) *Service {
	return &Service{store: store, hasher: hasher, codec: codec}
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a user and issues the first token pair. The id is
// generated before the insert, so the tokens are signed exactly once with the
// final identity.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, TokenPair, error) {
	email := strings.TrimSpace(input.Email)

	_, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return User{}, TokenPair{}, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, TokenPair{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return User{}, TokenPair{}, err
	}

	id, err := NewUserID()
	if err != nil {
		return User{}, TokenPair{}, err
	}

	tokens, err := s.signPair(id, email)
	if err != nil {
		return User{}, TokenPair{}, err
	}

	now := time.Now().UTC()
	user := User{
		ID:           id,
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		RefreshToken: tokens.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return User{}, TokenPair{}, err
	}

	return user, tokens, nil
}

// Login verifies credentials and rotates the refresh-token slot. An unknown
// email and a wrong password fail identically, so the endpoint cannot be used
// to enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (User, TokenPair, error) {
	user, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, TokenPair{}, ErrInvalidCredentials
		}
		return User{}, TokenPair{}, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return User{}, TokenPair{}, ErrInvalidCredentials
	}

	tokens, err := s.signPair(user.ID, user.Email)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return User{}, TokenPair{}, err
	}

	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// verify cryptographically AND match the stored slot byte for byte: an
// expired-but-stored token and a valid-but-superseded token both fail. The
// overwrite is the rotation; replaying the consumed token fails next time.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return TokenPair{}, ErrInvalidToken
	}

	tokens, err := s.signPair(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return TokenPair{}, err
	}

	return tokens, nil
}

// Logout clears the slot for the user named by the token, whether or not the
// presented token still matches it. The intent is "this session must die",
// not "this exact string must match".
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}

	if err := s.store.ClearRefreshToken(ctx, claims.UserID); err != nil {
		return err
	}

	return nil
}

func (s *Service) VerifyAccessToken(token string) (*TokenClaims, error) {
	return s.codec.VerifyAccess(token)
}

func (s *Service) VerifyRefreshToken(token string) (*TokenClaims, error) {
	return s.codec.VerifyRefresh(token)
}

func (s *Service) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}

// ChangePassword stores the new hash and clears the refresh-token slot. With
// a single slot per user this is the only revoke-everywhere mechanism.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return s.store.UpdatePassword(ctx, user.ID, hash)
}

// SweepExpiredSessions clears refresh-token slots whose JWT no longer
// verifies. Expired tokens already fail lazily on use; the sweep just keeps
// dead sessions from sitting in the table forever. The clear is conditional
// on the value observed during the listing, so a session issued between the
// listing and the clear survives.
func (s *Service) SweepExpiredSessions(ctx context.Context, batchSize int) (int64, error) {
	holders, err := s.store.ListActiveRefreshTokens(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	var cleared int64
	for _, holder := range holders {
		if _, err := s.codec.VerifyRefresh(holder.RefreshToken); err == nil {
			continue
		}
		ok, err := s.store.ClearRefreshTokenIf(ctx, holder.ID, holder.RefreshToken)
		if err != nil {
			return cleared, err
		}
		if ok {
			cleared++
		}
	}

	return cleared, nil
}

func (s *Service) signPair(userID, email string) (TokenPair, error) {
	access, err := s.codec.SignAccess(userID, email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.SignRefresh(userID, email)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

var (
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrUserNotFound       = errors.New("user not found")
)
