package auth

import (
	"context"
	"testing"
	"time"

	"agromarket/config"
	"agromarket/internal/apperr"
	"agromarket/internal/models"
	"agromarket/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	byEmail map[string]*models.User
	byPhone map[string]*models.User
	nextID  int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byEmail: map[string]*models.User{},
		byPhone: map[string]*models.User{},
		nextID:  1,
	}
}

func (f *fakeUsers) CreateUser(_ context.Context, user *models.User) error {
	if _, ok := f.byEmail[user.Email]; ok {
		return apperr.New(apperr.Conflict, "email or phone already registered")
	}
	user.ID = f.nextID
	f.nextID++
	f.byEmail[user.Email] = user
	f.byPhone[user.Phone] = user
	return nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) GetUserByPhone(_ context.Context, phone string) (*models.User, error) {
	u, ok := f.byPhone[phone]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	return u, nil
}

// fakeOTPs is an in-memory stand-in for the redis-backed store.
type fakeOTPs struct {
	otps     map[string]string
	attempts map[string]int64
}

func newFakeOTPs() *fakeOTPs {
	return &fakeOTPs{otps: map[string]string{}, attempts: map[string]int64{}}
}

func (f *fakeOTPs) SetOTP(_ context.Context, phone, code string, _ time.Duration) error {
	f.otps[phone] = code
	return nil
}

func (f *fakeOTPs) GetOTP(_ context.Context, phone string) (string, error) {
	code, ok := f.otps[phone]
	if !ok {
		return "", redisclient.ErrNotFound
	}
	return code, nil
}

func (f *fakeOTPs) DeleteOTP(_ context.Context, phone string) error {
	delete(f.otps, phone)
	return nil
}

func (f *fakeOTPs) IncrAttempts(_ context.Context, identity string, _ time.Duration) (int64, error) {
	f.attempts[identity]++
	return f.attempts[identity], nil
}

func (f *fakeOTPs) GetAttempts(_ context.Context, identity string) (int64, error) {
	return f.attempts[identity], nil
}

func (f *fakeOTPs) ResetAttempts(_ context.Context, identity string) error {
	delete(f.attempts, identity)
	return nil
}

type sentOTPs struct {
	codes map[string]string
}

func (s *sentOTPs) SendOTP(_ context.Context, phone, code string) error {
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		OTPLength:        6,
		OTPTTL:           5 * time.Minute,
		LoginMaxAttempts: 3,
		LoginLockWindow:  15 * time.Minute,
	}
}

func newTestService() (*Service, *fakeUsers, *fakeOTPs, *sentOTPs) {
	users := newFakeUsers()
	otps := newFakeOTPs()
	sender := &sentOTPs{}
	return NewService(users, otps, sender, testAuthConfig()), users, otps, sender
}

func registerVerified(t *testing.T, svc *Service, email, phone, password string) *models.User {
	t.Helper()
	user, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Test User",
		Email:    email,
		Phone:    phone,
		Password: password,
		Role:     models.RoleFarmer,
	})
	require.NoError(t, err)
	user.IsVerified = true
	return user
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, users, _, _ := newTestService()

	user, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Siti",
		Email:    "siti@example.com",
		Phone:    "+628111111111",
		Password: "hunter2hunter2",
		Role:     models.RoleRetailer,
	})
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
	assert.True(t, user.IsActive)

	stored := users.byEmail["siti@example.com"]
	assert.NotEqual(t, "hunter2hunter2", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2hunter2")))
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Mallory",
		Email:    "m@example.com",
		Phone:    "+628999999999",
		Password: "password123",
		Role:     models.RoleAdmin,
	})
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _, _ := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	token, user, err := svc.Login(context.Background(), "a@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParseToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleFarmer, claims.Role)
}

func TestLoginWrongPasswordCountsAttempts(t *testing.T) {
	svc, _, otps, _ := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	_, _, err := svc.Login(context.Background(), "a@example.com", "wrong")
	assert.True(t, apperr.IsKind(err, apperr.Authorization))
	assert.Equal(t, int64(1), otps.attempts["a@example.com"])
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	svc, _, _, _ := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	for i := 0; i < 3; i++ {
		_, _, err := svc.Login(context.Background(), "a@example.com", "wrong")
		require.Error(t, err)
	}

	// even the correct password is refused while locked out
	_, _, err := svc.Login(context.Background(), "a@example.com", "password123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many failed attempts")
}

func TestLoginResetsAttemptsOnSuccess(t *testing.T) {
	svc, _, otps, _ := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	_, _, _ = svc.Login(context.Background(), "a@example.com", "wrong")
	_, _, err := svc.Login(context.Background(), "a@example.com", "password123")
	require.NoError(t, err)
	assert.Zero(t, otps.attempts["a@example.com"])
}

func TestLoginGatesUnverifiedAndInactive(t *testing.T) {
	svc, users, _, _ := newTestService()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Name: "B", Email: "b@example.com", Phone: "+62812",
		Password: "password123", Role: models.RoleRetailer,
	})
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "b@example.com", "password123")
	assert.Contains(t, err.Error(), "awaiting verification")

	users.byEmail["b@example.com"].IsVerified = true
	users.byEmail["b@example.com"].IsActive = false
	_, _, err = svc.Login(context.Background(), "b@example.com", "password123")
	assert.Contains(t, err.Error(), "deactivated")
}

func TestOTPFlow(t *testing.T) {
	svc, _, otps, sender := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	require.NoError(t, svc.RequestOTP(context.Background(), "+62811"))
	code := sender.codes["+62811"]
	require.Len(t, code, 6)
	assert.Equal(t, code, otps.otps["+62811"])

	token, user, err := svc.VerifyOTP(context.Background(), "+62811", code)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "+62811", user.Phone)

	// the code is single use
	_, _, err = svc.VerifyOTP(context.Background(), "+62811", code)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestVerifyOTPWrongCode(t *testing.T) {
	svc, _, otps, sender := newTestService()
	registerVerified(t, svc, "a@example.com", "+62811", "password123")

	require.NoError(t, svc.RequestOTP(context.Background(), "+62811"))

	_, _, err := svc.VerifyOTP(context.Background(), "+62811", "000000")
	if sender.codes["+62811"] == "000000" {
		t.Skip("generated code collided with the test value")
	}
	assert.True(t, apperr.IsKind(err, apperr.Validation))
	assert.Equal(t, int64(1), otps.attempts["+62811"])
}

func TestRequestOTPUnknownPhone(t *testing.T) {
	svc, _, _, _ := newTestService()

	err := svc.RequestOTP(context.Background(), "+62899")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}
