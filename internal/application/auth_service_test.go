package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/domain/entity"
	"github.com/oksasatya/go-ddd-auth/internal/domain/event"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/memory"
	"github.com/oksasatya/go-ddd-auth/internal/infrastructure/security"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testEmail    = "a@b.com"
	testUsername = "alice"
	testPassword = "Str0ng!Pass"
)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       *AuthService
	repo      *memory.UserRepository
	tokens    *security.TokenService
	hasher    *security.PasswordHasher
	publisher *recordingPublisher
}

func testHasherConfig() security.HasherConfig {
	return security.HasherConfig{
		Algorithm: security.AlgorithmArgon2id,
		Argon2: argon2id.Params{
			Memory:      1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		BcryptCost: 4,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher, err := security.NewPasswordHasher(testHasherConfig())
	require.NoError(t, err)
	tokens, err := security.NewTokenService(security.TokenConfig{Secret: "test-secret", Issuer: "auth"},
		security.WithTokenClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		repo:      memory.NewUserRepository(),
		tokens:    tokens,
		hasher:    hasher,
		publisher: &recordingPublisher{},
	}
	f.svc = NewAuthService(f.repo, hasher, tokens, f.publisher, memory.NewVerificationStore(), logger)
	f.svc.Now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) register(t *testing.T) *RegisterResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:           testEmail,
		Username:        testUsername,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) login(password string, remember bool) (*LoginResult, error) {
	return f.svc.Login(context.Background(), LoginInput{Email: testEmail, Password: password, RememberMe: remember})
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	res := f.register(t)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, testEmail, res.Email)
	assert.Equal(t, testUsername, res.Username)
	assert.False(t, res.IsVerified)
	assert.Equal(t, fixedNow, res.CreatedAt)

	stored, err := f.repo.FindByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.True(t, f.hasher.Verify(testPassword, stored.PasswordHash))

	require.Equal(t, []event.Type{event.UserRegistered}, f.publisher.types())
	assert.Equal(t, res.ID, f.publisher.events[0].UserID)
}

func TestRegister_LongPasswordUnderBcrypt(t *testing.T) {
	f := newFixture(t)
	cfg := testHasherConfig()
	cfg.Algorithm = security.AlgorithmBcrypt
	hasher, err := security.NewPasswordHasher(cfg)
	require.NoError(t, err)
	f.svc.Hasher = hasher

	long := "Aa1!" + strings.Repeat("p", 96)
	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email: testEmail, Username: testUsername, Password: long, ConfirmPassword: long,
	})
	require.NoError(t, err)

	_, err = f.login(long, false)
	assert.NoError(t, err)
}

func TestRegister_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		code apperror.Code
	}{
		{
			name: "duplicate email ignoring case",
			in:   RegisterInput{Email: "A@B.COM", Username: "bob", Password: testPassword, ConfirmPassword: testPassword},
			code: apperror.CodeEmailExists,
		},
		{
			name: "duplicate username",
			in:   RegisterInput{Email: "c@d.com", Username: testUsername, Password: testPassword, ConfirmPassword: testPassword},
			code: apperror.CodeUsernameExists,
		},
		{
			name: "confirm mismatch",
			in:   RegisterInput{Email: "c@d.com", Username: "bob", Password: testPassword, ConfirmPassword: "Other!Pass1"},
			code: apperror.CodePasswordMismatch,
		},
		{
			name: "weak password",
			in:   RegisterInput{Email: "c@d.com", Username: "bob", Password: "weakpass", ConfirmPassword: "weakpass"},
			code: apperror.CodeWeakPassword,
		},
		{
			name: "malformed email",
			in:   RegisterInput{Email: "nope", Username: "bob", Password: testPassword, ConfirmPassword: testPassword},
			code: apperror.CodeInvalidEmail,
		},
		{
			name: "short username",
			in:   RegisterInput{Email: "c@d.com", Username: "bo", Password: testPassword, ConfirmPassword: testPassword},
			code: apperror.CodeInvalidUser,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.register(t)
			_, err := f.svc.Register(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperror.CodeOf(err))
			assert.Len(t, f.publisher.events, 1)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	tests := []struct {
		name        string
		remember    bool
		wantExpires int64
		wantRefresh time.Duration
	}{
		{name: "session", remember: false, wantExpires: 900, wantRefresh: 604800 * time.Second},
		{name: "remember me", remember: true, wantExpires: 86400, wantRefresh: 2592000 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			reg := f.register(t)

			res, err := f.login(testPassword, tt.remember)
			require.NoError(t, err)
			assert.Equal(t, "bearer", res.TokenType)
			assert.Equal(t, tt.wantExpires, res.ExpiresIn)
			assert.Equal(t, reg.ID, res.User.ID)
			assert.Equal(t, testEmail, res.User.Email)
			assert.True(t, res.User.IsActive)
			assert.False(t, res.User.IsVerified)

			claims, err := f.tokens.VerifyToken(res.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, reg.ID, claims["sub"])
			assert.Equal(t, testEmail, claims["email"])
			assert.Equal(t, testUsername, claims["username"])
			assert.Equal(t, false, claims["is_verified"])
			assert.Equal(t, "access", claims["type"])

			exp, ok := f.tokens.GetExpiry(res.RefreshToken)
			require.True(t, ok)
			assert.Equal(t, fixedNow.Add(tt.wantRefresh), exp)

			has, err := f.repo.HasRefreshToken(context.Background(), reg.ID, res.RefreshToken)
			require.NoError(t, err)
			assert.True(t, has)

			u, err := f.repo.FindByID(context.Background(), reg.ID)
			require.NoError(t, err)
			require.NotNil(t, u.LastLoginAt)
			assert.Equal(t, fixedNow, *u.LastLoginAt)

			assert.Equal(t, []event.Type{event.UserRegistered, event.UserLoggedIn}, f.publisher.types())
		})
	}
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	_, err := f.svc.Login(context.Background(), LoginInput{Email: "  A@B.com ", Password: testPassword})
	assert.NoError(t, err)
}

func TestLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	_, unknown := f.svc.Login(context.Background(), LoginInput{Email: "ghost@b.com", Password: testPassword})
	_, wrong := f.login("Wrong!Pass1", false)

	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.Equal(t, apperror.CodeOf(unknown), apperror.CodeOf(wrong))
	assert.Equal(t, apperror.CodeInvalidCredentials, apperror.CodeOf(unknown))
}

func TestLogin_LocksAfterFiveFailures(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)

	for i := 1; i <= 4; i++ {
		_, err := f.login("wrong", false)
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials, "attempt %d", i)
	}
	_, err := f.login("wrong", false)
	require.ErrorIs(t, err, apperror.ErrAccountLocked, "fifth attempt locks")

	_, err = f.login(testPassword, false)
	require.ErrorIs(t, err, apperror.ErrAccountLocked, "correct password is still rejected")

	u, err := f.repo.FindByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MaxFailedLoginAttempts, u.FailedLoginAttempts)
	assert.Empty(t, u.RefreshTokens())
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)

	for i := 0; i < 4; i++ {
		_, err := f.login("wrong", false)
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}
	_, err := f.login(testPassword, false)
	require.NoError(t, err)

	u, err := f.repo.FindByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginAttempts)

	for i := 0; i < 4; i++ {
		_, err := f.login("wrong", false)
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	u, err := f.repo.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	u.Deactivate(fixedNow)
	_, err = f.repo.Save(ctx, u)
	require.NoError(t, err)

	_, err = f.login("wrong", false)
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = f.login(testPassword, false)
	assert.ErrorIs(t, err, apperror.ErrAccountInactive)

	u, err = f.repo.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginAttempts)
}

// failingSaveRepo refuses to persist updates of existing users.
type failingSaveRepo struct {
	*memory.UserRepository
}

func (r failingSaveRepo) Save(ctx context.Context, u *entity.User) (*entity.User, error) {
	if u.ID != "" {
		return nil, errors.New("connection reset")
	}
	return r.UserRepository.Save(ctx, u)
}

func TestLogin_FailedAttemptMustPersist(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	f.svc.Repo = failingSaveRepo{f.repo}

	_, err := f.login("wrong", false)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
	assert.Equal(t, "internal error", err.Error())
}

func TestLogin_ConcurrentFailuresAreNotLost(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)

	const attempts = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.login("wrong", false)
			if errors.Is(err, apperror.ErrInvalidCredentials) {
				mu.Lock()
				invalid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	u, err := f.repo.FindByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, u.FailedLoginAttempts, entity.MaxFailedLoginAttempts)

	// Every persisted increment was reported: the crossing attempt as locked,
	// the others as invalid credentials.
	want := invalid
	if u.IsLocked() {
		want++
	}
	assert.Equal(t, want, u.FailedLoginAttempts)
}

func TestLogin_RehashesLegacyCredential(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	legacyCfg := testHasherConfig()
	legacyCfg.Algorithm = security.AlgorithmBcrypt
	legacy, err := security.NewPasswordHasher(legacyCfg)
	require.NoError(t, err)
	hash, _, err := legacy.Hash(testPassword)
	require.NoError(t, err)

	u, err := f.repo.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	u.RehashCredential(hash, fixedNow)
	_, err = f.repo.Save(ctx, u)
	require.NoError(t, err)

	_, err = f.login(testPassword, false)
	require.NoError(t, err)

	u, err = f.repo.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	alg, ok := security.FormatOf(u.PasswordHash)
	require.True(t, ok)
	assert.Equal(t, security.AlgorithmArgon2id, alg)
}

func TestLogin_PublisherFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	f.publisher.err = errors.New("broker down")

	_, err := f.login(testPassword, false)
	assert.NoError(t, err)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	first, err := f.login(testPassword, true)
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, int64(86400), second.ExpiresIn, "remember me window is kept")

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid, "a refresh token is single use")

	_, err = f.svc.Refresh(ctx, first.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid, "access tokens cannot refresh")

	has, err := f.repo.HasRefreshToken(ctx, reg.ID, second.RefreshToken)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	a, err := f.login(testPassword, false)
	require.NoError(t, err)
	b, err := f.login(testPassword, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, reg.ID, a.RefreshToken))
	_, err = f.svc.Refresh(ctx, a.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)

	require.NoError(t, f.svc.Logout(ctx, reg.ID, ""))
	_, err = f.svc.Refresh(ctx, b.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)

	assert.Contains(t, f.publisher.types(), event.UserLoggedOut)
	assert.ErrorIs(t, f.svc.Logout(ctx, "missing", ""), apperror.ErrUserNotFound)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	res, err := f.login(testPassword, false)
	require.NoError(t, err)

	p, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, p.UserID)
	assert.Equal(t, testUsername, p.Username)
	assert.Equal(t, fixedNow.Add(AccessTTL), p.ExpiresAt)

	_, err = f.svc.Authenticate(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)

	_, err = f.repo.Delete(ctx, reg.ID)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)
}

func TestIntrospectToken(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	res, err := f.login(testPassword, false)
	require.NoError(t, err)

	info := f.svc.IntrospectToken(res.AccessToken)
	assert.True(t, info.IsValid)
	assert.Equal(t, reg.ID, info.UserID)
	assert.Equal(t, testEmail, info.Email)
	require.NotNil(t, info.ExpiresAt)

	assert.False(t, f.svc.IntrospectToken("garbage").IsValid)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	res, err := f.login(testPassword, false)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{
		UserID: reg.ID, CurrentPassword: "Wrong!Pass1", NewPassword: "N3w!Password", ConfirmPassword: "N3w!Password",
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{
		UserID: reg.ID, CurrentPassword: testPassword, NewPassword: "weak", ConfirmPassword: "weak",
	})
	assert.Equal(t, apperror.CodeWeakPassword, apperror.CodeOf(err))

	err = f.svc.ChangePassword(ctx, ChangePasswordInput{
		UserID: reg.ID, CurrentPassword: testPassword, NewPassword: "N3w!Password", ConfirmPassword: "N3w!Password",
	})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid, "refresh tokens are revoked")

	_, err = f.login(testPassword, false)
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	_, err = f.login("N3w!Password", false)
	assert.NoError(t, err)
	assert.Contains(t, f.publisher.types(), event.PasswordChanged)
}

func TestChangePassword_WrongCurrentPasswordLocks(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	guess := ChangePasswordInput{
		UserID: reg.ID, CurrentPassword: "Guess!Pass1", NewPassword: "N3w!Password", ConfirmPassword: "N3w!Password",
	}
	for i := 1; i < entity.MaxFailedLoginAttempts; i++ {
		require.ErrorIs(t, f.svc.ChangePassword(ctx, guess), apperror.ErrInvalidCredentials, "attempt %d", i)
	}
	require.ErrorIs(t, f.svc.ChangePassword(ctx, guess), apperror.ErrAccountLocked)

	u, err := f.repo.FindByID(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, u.IsLocked())

	right := guess
	right.CurrentPassword = testPassword
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, right), apperror.ErrAccountLocked, "correct password is still rejected")
	_, err = f.login(testPassword, false)
	assert.ErrorIs(t, err, apperror.ErrAccountLocked, "login shares the counter")
}

func TestEmailVerification(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	ctx := context.Background()

	ticket, err := f.svc.RequestEmailVerification(ctx, reg.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.Token)
	assert.False(t, ticket.AlreadyVerified)
	assert.Equal(t, fixedNow.Add(VerificationTTL), ticket.ExpiresAt)

	user, err := f.svc.ConfirmEmailVerification(ctx, ticket.Token)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)

	_, err = f.svc.ConfirmEmailVerification(ctx, ticket.Token)
	assert.ErrorIs(t, err, apperror.ErrTokenInvalid)

	again, err := f.svc.RequestEmailVerification(ctx, reg.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyVerified)
	assert.Empty(t, again.Token)

	assert.Contains(t, f.publisher.types(), event.EmailVerified)

	res, err := f.login(testPassword, false)
	require.NoError(t, err)
	claims, err := f.tokens.VerifyToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, true, claims["is_verified"])
}

func TestEmailVerification_Unavailable(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t)
	f.svc.Verifications = nil

	_, err := f.svc.RequestEmailVerification(context.Background(), reg.ID)
	assert.ErrorIs(t, err, ErrVerificationUnavailable)
}
