package httpapi

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"lojapdv/backend/internal/domain"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
	log       logrus.FieldLogger
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"sid"`
}

// TokenClaims is what a verified access token says about its bearer.
type TokenClaims struct {
	Actor     domain.Actor
	SessionID string
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore, log logrus.FieldLogger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
		log:       log.WithField("component", "auth"),
	}
}

// EnsureBootstrapUsers creates the admin and cashier accounts when the user
// store is empty. Empty passwords skip the corresponding account.
func (a *AuthManager) EnsureBootstrapUsers(ctx context.Context, adminPassword string, cashierPassword string) (int, error) {
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	if len(users) > 0 {
		return 0, nil
	}

	created := 0
	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPassword, domain.RoleAdmin},
		{"cashier", cashierPassword, domain.RoleCashier},
	} {
		if strings.TrimSpace(u.password) == "" {
			a.log.WithField("username", u.username).Warn("no bootstrap password configured, account not created")
			continue
		}
		hash, err := hashPassword(u.password)
		if err != nil {
			return created, err
		}
		if err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  u.username,
			Password:  hash,
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		a.log.WithField("created", created).Info("bootstrap users created")
	}
	return created, nil
}

// Authenticate checks a username and password against the user store.
func (a *AuthManager) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.Actor, error) {
	a.loadUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.Actor{}, errInvalidCredentials
	}
	if !verifyPassword(cred.password, req.Password) {
		return domain.Actor{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.Actor{}, errInactiveAccount
	}
	return domain.Actor{Username: username, Role: cred.role}, nil
}

// IssueToken signs an access token binding actor to one checkout session.
func (a *AuthManager) IssueToken(actor domain.Actor, sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "lojapdv",
		},
		Role:      actor.Role,
		SessionID: sessionID,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (TokenClaims, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("lojapdv"))
	if err != nil || !token.Valid {
		return TokenClaims{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return TokenClaims{}, errors.New("invalid token subject")
	}
	if claims.SessionID == "" {
		return TokenClaims{}, errors.New("token carries no session")
	}
	return TokenClaims{
		Actor:     domain.Actor{Username: sub, Role: claims.Role},
		SessionID: claims.SessionID,
	}, nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.loadUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.CashierUser{}, domain.InvalidInput("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, domain.InvalidInput("username must not contain spaces")
	}
	if err := validatePassword(req.Password); err != nil {
		return domain.CashierUser{}, err
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.CashierUser{}, domain.Conflict("username already exists")
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, err
	}
	if err := a.userStore.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		return domain.CashierUser{}, err
	}

	a.mu.Lock()
	a.users[username] = credential{
		password: passwordHash,
		role:     domain.RoleCashier,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()
	a.log.WithField("username", username).Info("cashier created")

	return domain.CashierUser{
		Username:  username,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	a.loadUsers(ctx)
	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.users))
	for username, user := range a.users {
		if user.role != domain.RoleCashier {
			continue
		}
		result = append(result, domain.CashierUser{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// ChangePassword replaces the caller's own password after checking the
// current one.
func (a *AuthManager) ChangePassword(ctx context.Context, username string, req domain.PasswordChangeRequest) error {
	a.loadUsers(ctx)
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.CurrentPassword) {
		return domain.InvalidInput("current password is incorrect")
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := a.userStore.UpdateUserPassword(ctx, username, hash); err != nil {
		return err
	}
	a.mu.Lock()
	cred.password = hash
	a.users[username] = cred
	a.mu.Unlock()
	a.log.WithField("username", username).Info("password changed")
	return nil
}

// loadUsers refreshes the credential cache from the user store and upgrades
// plain-text passwords left by manual inserts to bcrypt hashes.
func (a *AuthManager) loadUsers(ctx context.Context) {
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		a.log.WithError(err).Warn("loading users failed")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					a.log.WithError(err).WithField("username", username).Warn("password upgrade failed")
				}
			}
		}
		a.users[username] = credential{
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func validatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 6 {
		return domain.InvalidInput("password must be at least 6 characters")
	}
	return nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
