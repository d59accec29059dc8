/*Package sessions provides a persistent store of login sessions in a SQL database

A session is identified by a random token. It expires after a configurable duration,
which can be extended while the session is in use, but never beyond its maximum
expiry date.
*/
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/kadmin/core/csql"
	"github.com/relabs-tech/kadmin/core/logger"
	"github.com/relabs-tech/kadmin/core/model"
)

// DefaultTable is the default name of the session table
const DefaultTable = "admin_session"

// ErrNotFound is returned when a session does not exist or has expired
var ErrNotFound = errors.New("session not found")

// Session is a login session
type Session struct {
	Token         string
	UserID        int64
	ExpiryDate    time.Time
	MaxExpiryDate time.Time
}

// Store provides a persistent store of sessions in a sql database.
type Store struct {
	db    *csql.DB
	table string
	now   func() time.Time
}

// New creates a new session store for the specified database. An empty table name
// selects DefaultTable.
func New(db *csql.DB, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table, now: time.Now}
}

// Name returns the name of the session table
func (s *Store) Name() string {
	return s.table
}

// Table returns the descriptor of the session table, so that sessions can be
// listed in the admin.
func (s *Store) Table() *model.Table {
	return model.MustNewTable(s.table, []*model.Column{
		{Name: "token", Type: model.TypeVarchar, Length: 100, Unique: true, Secret: true},
		{Name: "user_id", Type: model.TypeInteger},
		{Name: "expiry_date", Type: model.TypeTimestamp},
		{Name: "max_expiry_date", Type: model.TypeTimestamp},
	})
}

// CreateTable creates the session table if it does not exist yet
func (s *Store) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE table IF NOT EXISTS `+s.db.Table(s.table)+`
(id SERIAL PRIMARY KEY,
token varchar(100) NOT NULL UNIQUE,
user_id integer NOT NULL,
expiry_date timestamp NOT NULL,
max_expiry_date timestamp NOT NULL
);`)
	return err
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create creates a new session for the user which expires after expiry. The session
// can be extended up to maxExpiry after its creation.
func (s *Store) Create(ctx context.Context, userID int64, expiry, maxExpiry time.Duration) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session := &Session{
		Token:         token,
		UserID:        userID,
		ExpiryDate:    now.Add(expiry),
		MaxExpiryDate: now.Add(maxExpiry),
	}
	if session.ExpiryDate.After(session.MaxExpiryDate) {
		session.ExpiryDate = session.MaxExpiryDate
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.db.Table(s.table)+`(token,user_id,expiry_date,max_expiry_date)
VALUES($1,$2,$3,$4);`,
		session.Token, session.UserID, session.ExpiryDate, session.MaxExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("cannot create session: %w", err)
	}
	return session, nil
}

// Read returns the session for token. It returns ErrNotFound if there is no such
// session or if the session has expired.
func (s *Store) Read(ctx context.Context, token string) (*Session, error) {
	session := &Session{Token: token}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expiry_date, max_expiry_date FROM `+s.db.Table(s.table)+` WHERE token=$1;`,
		token).Scan(&session.UserID, &session.ExpiryDate, &session.MaxExpiryDate)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read session: %w", err)
	}
	if !s.now().UTC().Before(session.ExpiryDate) {
		return nil, ErrNotFound
	}
	return session, nil
}

// extendedExpiry returns the new expiry date of a session, or false if the session
// does not need to be extended. A session is extended when it expires within
// increase, it is never extended past its maximum expiry date.
func extendedExpiry(session *Session, now time.Time, increase time.Duration) (time.Time, bool) {
	if increase <= 0 || session.ExpiryDate.Sub(now) >= increase {
		return time.Time{}, false
	}
	expiry := session.ExpiryDate.Add(increase)
	if expiry.After(session.MaxExpiryDate) {
		expiry = session.MaxExpiryDate
	}
	if !expiry.After(session.ExpiryDate) {
		return time.Time{}, false
	}
	return expiry, true
}

// IncreaseExpiry extends the session by increase if it is about to expire.
func (s *Store) IncreaseExpiry(ctx context.Context, session *Session, increase time.Duration) error {
	expiry, ok := extendedExpiry(session, s.now().UTC(), increase)
	if !ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE `+s.db.Table(s.table)+` SET expiry_date=$2 WHERE token=$1;`,
		session.Token, expiry)
	if err != nil {
		return err
	}
	session.ExpiryDate = expiry
	return nil
}

// Delete deletes a session
func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Table(s.table)+` WHERE token=$1;`,
		token)
	return err
}

// DeleteUser deletes all sessions of a user
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Table(s.table)+` WHERE user_id=$1;`,
		userID)
	return err
}

// DeleteExpired removes all sessions which have expired
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.db.Table(s.table)+` WHERE expiry_date <= $1;`,
		s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredAsync starts a loop which deletes expired sessions every interval
// until ctx is done. It returns immediately.
func (s *Store) DeleteExpiredAsync(ctx context.Context, interval time.Duration) {
	rlog := logger.Default()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			n, err := s.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					rlog.WithError(err).Errorln("Error 4201: cannot delete expired sessions")
				}
				continue
			}
			if n > 0 {
				rlog.Infof("deleted %d expired sessions", n)
			}
		}
	}()
}
