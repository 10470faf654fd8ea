package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type AuthService interface {
	RegisterUser(dbc dbctx.Context, email, password, name string) (*types.User, error)
	LoginUser(dbc dbctx.Context, email, password string) (accessToken string, refreshToken string, err error)
	RefreshUser(dbc dbctx.Context, refreshToken string) (string, string, error)
	LogoutUser(dbc dbctx.Context) error

	// SetContextFromToken validates a bearer token and attaches the request
	// identity to the context. Used by the auth middleware.
	SetContextFromToken(dbc dbctx.Context, tokenString string) (context.Context, error)
}

type authService struct {
	db         *gorm.DB
	log        *logger.Logger
	users      repos.UserRepo
	userTokens repos.UserTokenRepo

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) (AuthService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &authService{
		db:         db,
		log:        baseLog.With("service", "AuthService"),
		users:      userRepo,
		userTokens: userTokenRepo,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func (s *authService) RegisterUser(dbc dbctx.Context, email, password, name string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	exists, err := s.users.EmailExists(dbc, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hash),
		Name:     name,
	}
	created, err := s.users.Create(dbc, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("User registered", "user_id", created.ID)
	return created, nil
}

func (s *authService) LoginUser(dbc dbctx.Context, email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(dbc, email)
	if err != nil || user == nil {
		return "", "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", "", fmt.Errorf("invalid credentials")
	}

	return s.issueTokens(dbc, user)
}

func (s *authService) RefreshUser(dbc dbctx.Context, refreshToken string) (string, string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", "", fmt.Errorf("refresh token required")
	}

	row, err := s.userTokens.GetByRefreshToken(dbc, refreshToken)
	if err != nil || row == nil {
		return "", "", fmt.Errorf("invalid refresh token")
	}
	if row.ExpiresAt.Before(time.Now()) {
		_ = s.userTokens.Delete(dbc, row.ID)
		return "", "", fmt.Errorf("refresh token expired")
	}

	user, err := s.users.GetByID(dbc, row.UserID)
	if err != nil || user == nil {
		return "", "", fmt.Errorf("user not found")
	}

	if err := s.userTokens.Delete(dbc, row.ID); err != nil {
		return "", "", fmt.Errorf("rotate token: %w", err)
	}
	return s.issueTokens(dbc, user)
}

func (s *authService) LogoutUser(dbc dbctx.Context) error {
	rd := ctxutil.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return fmt.Errorf("not authenticated")
	}
	if rd.TokenID != uuid.Nil {
		return s.userTokens.Delete(dbc, rd.TokenID)
	}
	return s.userTokens.DeleteForUser(dbc, rd.UserID)
}

func (s *authService) issueTokens(dbc dbctx.Context, user *types.User) (string, string, error) {
	tokenID := uuid.New()
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": user.ID.String(),
		"jti": tokenID.String(),
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := uuid.New().String()
	if _, err := s.userTokens.Create(dbc, &types.UserToken{
		ID:           tokenID,
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.refreshTTL),
	}); err != nil {
		return "", "", fmt.Errorf("store token: %w", err)
	}

	return accessToken, refreshToken, nil
}

func (s *authService) SetContextFromToken(dbc dbctx.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject")
	}

	tokenID := uuid.Nil
	if jti, _ := claims["jti"].(string); jti != "" {
		if id, err := uuid.Parse(jti); err == nil {
			tokenID = id
		}
	}

	// Tokens are revocable: the row must still exist.
	row, err := s.userTokens.GetByAccessToken(dbc, tokenString)
	if err != nil || row == nil || row.UserID != userID {
		return nil, fmt.Errorf("token revoked")
	}

	return ctxutil.WithRequestData(dbc.Ctx, &ctxutil.RequestData{
		UserID:  userID,
		TokenID: tokenID,
	}), nil
}
