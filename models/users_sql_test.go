package models

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"eventapi/utils"
)

func TestSQLUserRepo_CreateHashesAndReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users(email, password, role, profile_id, name)`)).
		WithArgs("a@b.com", sqlmock.AnyArg(), RoleOrganizer, "prof-1", "Ana").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	repo := NewSQLUserRepository(db)
	u := &User{Email: " A@B.com ", Password: "p@ss", Role: RoleOrganizer, ProfileID: "prof-1", Name: "Ana"}
	require.NoError(t, repo.Create(context.Background(), u))
	require.Equal(t, int64(42), u.ID)
	require.True(t, utils.CheckPasswordHash("p@ss", u.Password))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUserRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err = NewSQLUserRepository(db).Create(context.Background(), &User{Email: "x@y.com", Password: "p"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestSQLUserRepo_ValidateCredentials(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hashed, err := utils.HashPassword("right")
	require.NoError(t, err)

	cols := []string{"id", "email", "password", "role", "profile_id", "name"}
	q := regexp.QuoteMeta(`SELECT id, email, password, role, profile_id, name FROM users WHERE email=$1`)
	mock.ExpectQuery(q).WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(7, "a@b.com", hashed, RoleAdmin, "p7", "Admin"))
	mock.ExpectQuery(q).WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(7, "a@b.com", hashed, RoleAdmin, "p7", "Admin"))
	mock.ExpectQuery(q).WithArgs("nobody@b.com").
		WillReturnRows(sqlmock.NewRows(cols))

	repo := NewSQLUserRepository(db)
	u, err := repo.ValidateCredentials(context.Background(), "a@b.com", "right")
	require.NoError(t, err)
	require.Equal(t, "p7", u.ProfileID)

	_, err = repo.ValidateCredentials(context.Background(), "a@b.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = repo.ValidateCredentials(context.Background(), "nobody@b.com", "right")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLUserRepo_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, role, profile_id, name FROM users WHERE id=$1`)).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "profile_id", "name"}))

	_, err = NewSQLUserRepository(db).GetByID(context.Background(), 9)
	require.ErrorIs(t, err, ErrNotFound)
}
