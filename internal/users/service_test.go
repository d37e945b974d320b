package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/essentia-erp/essentia-erp/internal/shared"
)

type fakeRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[int64]User), hashes: make(map[int64]string), nextID: 1}
}

func (f *fakeRepo) ListUsers(context.Context) ([]User, error) {
	var list []User
	for _, u := range f.users {
		list = append(list, u)
	}
	return list, nil
}

func (f *fakeRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) CreateUser(_ context.Context, email, name, passwordHash string, roleIDs []int64) (int64, error) {
	for _, u := range f.users {
		if u.Email == email {
			return 0, ErrDuplicate
		}
	}
	id := f.nextID
	f.nextID++
	f.users[id] = User{ID: id, Email: email, Name: name, IsActive: true, RoleIDs: roleIDs}
	f.hashes[id] = passwordHash
	return id, nil
}

func (f *fakeRepo) UpdateUser(_ context.Context, id int64, email, name string, isActive bool, roleIDs []int64) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Email, u.Name, u.IsActive, u.RoleIDs = email, name, isActive, roleIDs
	f.users[id] = u
	return nil
}

func (f *fakeRepo) SetPassword(_ context.Context, id int64, passwordHash string) error {
	if _, ok := f.users[id]; !ok {
		return ErrNotFound
	}
	f.hashes[id] = passwordHash
	return nil
}

func (f *fakeRepo) SetActive(_ context.Context, id int64, active bool, _ time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	f.users[id] = u
	return nil
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	id, err := svc.CreateUser(context.Background(), CreateInput{
		Email:    "  Ops@Essentia.Example ",
		Name:     "Ops Admin",
		Password: "correct horse",
		RoleIDs:  []int64{2},
	})
	require.NoError(t, err)

	user := repo.users[id]
	assert.Equal(t, "ops@essentia.example", user.Email)
	assert.True(t, user.IsActive)
	assert.Equal(t, []int64{2}, user.RoleIDs)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[id]), []byte("correct horse")))
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.CreateUser(context.Background(), CreateInput{
		Email:    "a@b.example",
		Name:     "A",
		Password: "short",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateUser(context.Background(), CreateInput{Email: "a@b.example", Name: "A", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.CreateUser(context.Background(), CreateInput{Email: "A@B.example", Name: "B", Password: "longenough"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDeactivateRefusesOwnAccount(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	id, err := svc.CreateUser(context.Background(), CreateInput{Email: "a@b.example", Name: "A", Password: "longenough"})
	require.NoError(t, err)

	err = svc.Deactivate(context.Background(), id, shared.Operator{ID: id, Name: "A"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, repo.users[id].IsActive)

	err = svc.Deactivate(context.Background(), id, shared.Operator{ID: id + 1, Name: "B"})
	require.NoError(t, err)
	assert.False(t, repo.users[id].IsActive)
}
