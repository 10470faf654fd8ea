package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ideaforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/ideaforge-backend/internal/domain"
	"github.com/yungbote/ideaforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
)

type fakeUserRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{rows: make(map[uuid.UUID]*types.User)}
}

func (f *fakeUserRepo) Create(dbc dbctx.Context, row *types.User) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	f.rows[row.ID] = &cp
	return row, nil
}

func (f *fakeUserRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Email == email {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	row, err := f.GetByEmail(dbc, email)
	return row != nil, err
}

type fakeUserTokenRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.UserToken
}

func newFakeUserTokenRepo() *fakeUserTokenRepo {
	return &fakeUserTokenRepo{rows: make(map[uuid.UUID]*types.UserToken)}
}

func (f *fakeUserTokenRepo) Create(dbc dbctx.Context, row *types.UserToken) (*types.UserToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *row
	f.rows[row.ID] = &cp
	return row, nil
}

func (f *fakeUserTokenRepo) GetByAccessToken(dbc dbctx.Context, accessToken string) (*types.UserToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.AccessToken == accessToken {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserTokenRepo) GetByRefreshToken(dbc dbctx.Context, refreshToken string) (*types.UserToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.RefreshToken == refreshToken {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserTokenRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return fmt.Errorf("token %s not found", id)
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeUserTokenRepo) DeleteForUser(dbc dbctx.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.rows {
		if r.UserID == userID {
			delete(f.rows, id)
		}
	}
	return nil
}

func (f *fakeUserTokenRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func newTestAuth(t *testing.T) (AuthService, *fakeUserRepo, *fakeUserTokenRepo) {
	t.Helper()
	users := newFakeUserRepo()
	tokens := newFakeUserTokenRepo()
	svc, err := NewAuthService(nil, testutil.Logger(t), users, tokens, "test-secret", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, users, tokens
}

func TestRegisterLoginAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	user, err := svc.RegisterUser(dbc, " Dev@Example.com ", "hunter2hunter2", "Dev")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if user.Email != "dev@example.com" {
		t.Fatalf("email = %q, want lowercase trimmed", user.Email)
	}
	if user.Password == "hunter2hunter2" {
		t.Fatal("password stored in plaintext")
	}

	access, refresh, err := svc.LoginUser(dbc, "dev@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("empty token pair")
	}

	ctx, err := svc.SetContextFromToken(dbc, access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != user.ID {
		t.Fatalf("request data = %+v, want user %s", rd, user.ID)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.RegisterUser(dbc, "not-an-email", "hunter2hunter2", ""); err == nil {
		t.Fatal("accepted invalid email")
	}
	if _, err := svc.RegisterUser(dbc, "a@b.com", "short", ""); err == nil {
		t.Fatal("accepted short password")
	}

	if _, err := svc.RegisterUser(dbc, "a@b.com", "hunter2hunter2", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, err := svc.RegisterUser(dbc, "A@B.com", "hunter2hunter2", ""); err == nil {
		t.Fatal("accepted duplicate email")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.RegisterUser(dbc, "a@b.com", "hunter2hunter2", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, _, err := svc.LoginUser(dbc, "a@b.com", "wrong-password"); err == nil {
		t.Fatal("accepted wrong password")
	}
	if _, _, err := svc.LoginUser(dbc, "nobody@b.com", "hunter2hunter2"); err == nil {
		t.Fatal("accepted unknown email")
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _, tokens := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.RegisterUser(dbc, "a@b.com", "hunter2hunter2", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	oldAccess, oldRefresh, err := svc.LoginUser(dbc, "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	newAccess, newRefresh, err := svc.RefreshUser(dbc, oldRefresh)
	if err != nil {
		t.Fatalf("RefreshUser: %v", err)
	}
	if newAccess == oldAccess || newRefresh == oldRefresh {
		t.Fatal("refresh did not rotate the token pair")
	}
	if tokens.count() != 1 {
		t.Fatalf("token rows = %d, want 1 after rotation", tokens.count())
	}

	// Old tokens are dead after rotation.
	if _, err := svc.SetContextFromToken(dbc, oldAccess); err == nil {
		t.Fatal("rotated-out access token still valid")
	}
	if _, _, err := svc.RefreshUser(dbc, oldRefresh); err == nil {
		t.Fatal("rotated-out refresh token still valid")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := svc.RegisterUser(dbc, "a@b.com", "hunter2hunter2", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	access, _, err := svc.LoginUser(dbc, "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	ctx, err := svc.SetContextFromToken(dbc, access)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if err := svc.LogoutUser(dbctx.Context{Ctx: ctx}); err != nil {
		t.Fatalf("LogoutUser: %v", err)
	}

	if _, err := svc.SetContextFromToken(dbc, access); err == nil {
		t.Fatal("access token valid after logout")
	}
}

func TestForgedTokenRejected(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	other, err := NewAuthService(nil, testutil.Logger(t), newFakeUserRepo(), newFakeUserTokenRepo(), "other-secret", time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	if _, err := other.RegisterUser(dbc, "a@b.com", "hunter2hunter2", ""); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	access, _, err := other.LoginUser(dbc, "a@b.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}

	if _, err := svc.SetContextFromToken(dbc, access); err == nil {
		t.Fatal("token signed with a different secret accepted")
	}
	if _, err := svc.SetContextFromToken(dbc, "garbage"); err == nil {
		t.Fatal("garbage token accepted")
	}
}
