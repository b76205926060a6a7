package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/damoang/angple-market/internal/common"
	"github.com/damoang/angple-market/internal/domain"
	"github.com/damoang/angple-market/internal/repository"
	"github.com/damoang/angple-market/pkg/cache"
	"github.com/damoang/angple-market/pkg/jwt"
	"github.com/damoang/angple-market/pkg/logger"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is a variable so tests can lower it
var bcryptCost = bcrypt.DefaultCost

var validate = validator.New()

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// dummyPasswordHash keeps login timing similar for unknown emails
func dummyPasswordHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("angple-market-dummy"), bcryptCost)
	})
	return dummyHash
}

// AuthService authentication business logic
type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	GetCurrentUser(ctx context.Context, userID uint64) (*domain.User, error)
}

type authService struct {
	userRepo   repository.UserRepository
	jwtManager *jwt.Manager
	cache      cache.Service
}

// NewAuthService creates a new AuthService. cacheService may be nil.
func NewAuthService(userRepo repository.UserRepository, jwtManager *jwt.Manager, cacheService cache.Service) AuthService {
	if cacheService == nil {
		cacheService = cache.NewService(nil)
	}
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		cache:      cacheService,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the new user in
func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: email format", common.ErrInvalidInput)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrInvalidInput)
	}

	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, common.ErrUserAlreadyExists
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 동시 가입 경합
		if repository.IsDuplicateKey(err) {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, err
	}

	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password are indistinguishable.
func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(req.Password))
			authLoginsTotal.WithLabelValues(resultFailure).Inc()
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		authLoginsTotal.WithLabelValues(resultFailure).Inc()
		return nil, common.ErrInvalidCredentials
	}

	authLoginsTotal.WithLabelValues(resultSuccess).Inc()
	return s.issue(user)
}

// GetCurrentUser returns the profile of the authenticated user
func (s *authService) GetCurrentUser(ctx context.Context, userID uint64) (*domain.User, error) {
	var cached domain.User
	if err := s.cache.GetUser(ctx, userID, &cached); err == nil && cached.ID == userID {
		return &cached, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}

	if err := s.cache.SetUser(ctx, userID, user); err != nil {
		logger.GetLogger().Warn().Err(err).Uint64("user_id", userID).Msg("user cache set failed")
	}
	return user, nil
}

func (s *authService) issue(user *domain.User) (*domain.AuthResponse, error) {
	token, expiresAt, err := s.jwtManager.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &domain.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}
