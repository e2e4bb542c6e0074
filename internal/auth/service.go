// Package auth implements registration, password login with a shared
// lockout counter, and WhatsApp OTP login.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"agromarket/config"
	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/redisclient"
	"agromarket/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of persistence the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
}

// OTPStore keeps OTPs and login-attempt counters in a store shared by all
// server instances.
type OTPStore interface {
	SetOTP(ctx context.Context, phone, code string, ttl time.Duration) error
	GetOTP(ctx context.Context, phone string) (string, error)
	DeleteOTP(ctx context.Context, phone string) error
	IncrAttempts(ctx context.Context, identity string, window time.Duration) (int64, error)
	GetAttempts(ctx context.Context, identity string) (int64, error)
	ResetAttempts(ctx context.Context, identity string) error
}

// OTPSender delivers codes over WhatsApp; delivery is an external concern.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

type Service struct {
	users  UserStore
	otps   OTPStore
	sender OTPSender
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewService(users UserStore, otps OTPStore, sender OTPSender, cfg config.AuthConfig) *Service {
	return &Service{
		users:  users,
		otps:   otps,
		sender: sender,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

// Register creates a farmer or retailer account. Admin accounts are not
// self-service. New accounts stay unverified until an admin approves them.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	if req.Role != models.RoleFarmer && req.Role != models.RoleRetailer {
		return nil, apperr.New(apperr.Validation, "role must be farmer or retailer")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Role:         req.Role,
		IsVerified:   false,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.Int64("user_id", user.ID),
		zap.String("role", user.Role))
	return user, nil
}

// Login authenticates by email and password, gated by the shared
// attempt counter.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if err := s.checkLockout(ctx, email); err != nil {
		return "", nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			s.recordFailure(ctx, email)
			return "", nil, apperr.New(apperr.Authorization, "invalid email or password")
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordFailure(ctx, email)
		return "", nil, apperr.New(apperr.Authorization, "invalid email or password")
	}

	if err := s.checkAccountGates(user); err != nil {
		return "", nil, err
	}

	if err := s.otps.ResetAttempts(ctx, email); err != nil {
		s.logger.Warn("Failed to reset attempt counter", zap.Error(err))
	}

	token, err := IssueToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.TokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

// RequestOTP generates a login code for a known phone number and hands it
// to the WhatsApp sender.
func (s *Service) RequestOTP(ctx context.Context, phone string) error {
	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		return err
	}
	if err := s.checkAccountGates(user); err != nil {
		return err
	}

	code, err := generateOTP(s.cfg.OTPLength)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	if err := s.otps.SetOTP(ctx, phone, code, s.cfg.OTPTTL); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		return apperr.Wrap(apperr.Upstream, err, "failed to deliver OTP")
	}

	util.OTPRequestsTotal.Inc()
	s.logger.Info("OTP requested", zap.Int64("user_id", user.ID))
	return nil
}

// VerifyOTP exchanges a valid code for a session token.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (string, *models.User, error) {
	if err := s.checkLockout(ctx, phone); err != nil {
		return "", nil, err
	}

	stored, err := s.otps.GetOTP(ctx, phone)
	if errors.Is(err, redisclient.ErrNotFound) {
		return "", nil, apperr.New(apperr.Validation, "OTP expired or not requested")
	}
	if err != nil {
		return "", nil, err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.recordFailure(ctx, phone)
		return "", nil, apperr.New(apperr.Validation, "incorrect verification code")
	}

	if err := s.otps.DeleteOTP(ctx, phone); err != nil {
		s.logger.Warn("Failed to consume OTP", zap.Error(err))
	}

	user, err := s.users.GetUserByPhone(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	if err := s.checkAccountGates(user); err != nil {
		return "", nil, err
	}

	if err := s.otps.ResetAttempts(ctx, phone); err != nil {
		s.logger.Warn("Failed to reset attempt counter", zap.Error(err))
	}

	token, err := IssueToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.TokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

func (s *Service) checkLockout(ctx context.Context, identity string) error {
	attempts, err := s.otps.GetAttempts(ctx, identity)
	if err != nil {
		return err
	}
	if attempts >= int64(s.cfg.LoginMaxAttempts) {
		util.LoginLockoutsTotal.Inc()
		return apperr.New(apperr.Authorization, "too many failed attempts, try again later")
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, identity string) {
	if _, err := s.otps.IncrAttempts(ctx, identity, s.cfg.LoginLockWindow); err != nil {
		s.logger.Warn("Failed to bump attempt counter", zap.Error(err))
	}
}

func (s *Service) checkAccountGates(user *models.User) error {
	if !user.IsActive {
		return apperr.New(apperr.Authorization, "account is deactivated")
	}
	if !user.IsVerified {
		return apperr.New(apperr.Authorization, "account is awaiting verification")
	}
	return nil
}

func generateOTP(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
