package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

// DefaultUserTable is the default name of the user table
const DefaultUserTable = "admin_user"

// MinPasswordLength is the minimum length of a password
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned when a username and password do not match
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordMismatch is returned when a new password and its confirmation differ
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrPasswordTooShort is returned when a new password is shorter than MinPasswordLength
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
)

// User is a user of the admin
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Active    bool       `json:"active"`
	Admin     bool       `json:"admin"`
	Superuser bool       `json:"superuser"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Authorization returns the authorization of the user
func (u *User) Authorization() *Authorization {
	auth := &Authorization{
		Identity: u.Username,
		UserID:   u.ID,
	}
	if u.Admin {
		auth.Roles = append(auth.Roles, RoleAdmin)
	}
	if u.Superuser {
		auth.Roles = append(auth.Roles, RoleSuperuser)
	}
	return auth
}

// Users provides access to the user table of the admin
type Users struct {
	db    *csql.DB
	table string
}

// NewUsers returns the users stored in table. An empty table name selects DefaultUserTable.
func NewUsers(db *csql.DB, table string) *Users {
	if table == "" {
		table = DefaultUserTable
	}
	return &Users{db: db, table: table}
}

// Name returns the name of the user table
func (u *Users) Name() string {
	return u.table
}

// Table returns the descriptor of the user table, so that users can be
// managed in the admin.
func (u *Users) Table() *model.Table {
	return model.MustNewTable(u.table, []*model.Column{
		{Name: "username", Type: model.TypeVarchar, Length: 100, Unique: true, Required: true},
		{Name: "password", Type: model.TypeVarchar, Length: 255, Secret: true, Required: true},
		{Name: "first_name", Type: model.TypeVarchar, Length: 255, Null: true},
		{Name: "last_name", Type: model.TypeVarchar, Length: 255, Null: true},
		{Name: "email", Type: model.TypeVarchar, Length: 255, Unique: true},
		{Name: "active", Type: model.TypeBoolean, Default: false},
		{Name: "admin", Type: model.TypeBoolean, Default: false, HelpText: "An admin can log into the admin"},
		{Name: "superuser", Type: model.TypeBoolean, Default: false, HelpText: "A superuser can manage users and sessions"},
		{Name: "last_login", Type: model.TypeTimestamp, Null: true},
	}, model.WithReadable("username"))
}

// CreateTable creates the user table if it does not exist yet
func (u *Users) CreateTable(ctx context.Context) error {
	_, err := u.db.ExecContext(ctx, `CREATE table IF NOT EXISTS `+u.db.Table(u.table)+`
(id SERIAL PRIMARY KEY,
username varchar(100) NOT NULL UNIQUE,
password varchar(255) NOT NULL,
first_name varchar(255),
last_name varchar(255),
email varchar(255) NOT NULL UNIQUE,
active boolean NOT NULL DEFAULT false,
admin boolean NOT NULL DEFAULT false,
superuser boolean NOT NULL DEFAULT false,
last_login timestamp
);`)
	return err
}

// HashPassword returns the bcrypt hash of password. A password which is already
// hashed is returned unchanged, which lets callers store existing hashes.
func HashPassword(password string) (string, error) {
	if IsHashedPassword(password) {
		return password, nil
	}
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsHashedPassword returns true if password is a bcrypt hash
func IsHashedPassword(password string) bool {
	_, err := bcrypt.Cost([]byte(password))
	return err == nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("kadmin"), bcrypt.DefaultCost)
	})
	return dummy
}

const userColumns = `id, username, coalesce(first_name,''), coalesce(last_name,''), email, active, admin, superuser, last_login`

func (u *Users) scan(scanner interface{ Scan(...interface{}) error }, extra ...interface{}) (*User, error) {
	user := &User{}
	dest := append([]interface{}{&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.Email,
		&user.Active, &user.Admin, &user.Superuser, &user.LastLogin}, extra...)
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	return user, nil
}

// Read returns the user with id
func (u *Users) Read(ctx context.Context, id int64) (*User, error) {
	user, err := u.scan(u.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM `+u.db.Table(u.table)+` WHERE id=$1;`, id))
	if err == csql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	return user, err
}

// Login checks the credentials of a user and updates its last login. It returns
// ErrInvalidCredentials if the user does not exist or the password is wrong.
func (u *Users) Login(ctx context.Context, username, password string) (*User, error) {
	var hash string
	user, err := u.scan(u.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password FROM `+u.db.Table(u.table)+` WHERE username=$1;`, username), &hash)
	if err == csql.ErrNoRows {
		// compare anyway so that unknown users take as long as wrong passwords
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		logger.FromContext(ctx).Infoln("login failed for", username)
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if _, err = u.db.ExecContext(ctx,
		`UPDATE `+u.db.Table(u.table)+` SET last_login=$2 WHERE id=$1;`, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return user, nil
}

// ChangePassword changes the password of the user with id. The current password must
// match and the new password must be confirmed.
func (u *Users) ChangePassword(ctx context.Context, id int64, current, password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	var hash string
	err := u.db.QueryRowContext(ctx,
		`SELECT password FROM `+u.db.Table(u.table)+` WHERE id=$1;`, id).Scan(&hash)
	if err == csql.ErrNoRows {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err = HashPassword(password)
	if err != nil {
		return err
	}
	_, err = u.db.ExecContext(ctx,
		`UPDATE `+u.db.Table(u.table)+` SET password=$2 WHERE id=$1;`, id, hash)
	return err
}

// EnsureUser creates the user with password if no user with that username exists
// yet. It is used to bootstrap the first superuser.
func (u *Users) EnsureUser(ctx context.Context, user *User, password string) (*User, error) {
	return u.upsert(ctx, user, password, `DO NOTHING`)
}

// SaveUser creates the user with password or, if a user with that username exists,
// overwrites its password, names, email and flags.
func (u *Users) SaveUser(ctx context.Context, user *User, password string) (*User, error) {
	return u.upsert(ctx, user, password, `DO UPDATE SET password=EXCLUDED.password,
first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name, email=EXCLUDED.email,
active=EXCLUDED.active, admin=EXCLUDED.admin, superuser=EXCLUDED.superuser`)
}

func (u *Users) upsert(ctx context.Context, user *User, password string, onConflict string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		user.Email = user.Username
	}
	_, err = u.db.ExecContext(ctx,
		`INSERT INTO `+u.db.Table(u.table)+`(username,password,first_name,last_name,email,active,admin,superuser)
VALUES($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (username) `+onConflict+`;`,
		user.Username, hash, user.FirstName, user.LastName, strings.ToLower(user.Email),
		user.Active, user.Admin, user.Superuser)
	if err != nil {
		return nil, err
	}
	return u.scan(u.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM `+u.db.Table(u.table)+` WHERE username=$1;`, user.Username))
}
