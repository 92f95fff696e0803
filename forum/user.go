package forum

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = 12

type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Hash      []byte     `json:"hash"`
	Created   time.Time  `json:"created"`
	Updated   time.Time  `json:"updated"`
	Admin     bool       `json:"admin"`
	LastLogin *time.Time `json:"last_login"`
}

func NewUser(username, email string, admin bool) *User {
	now := time.Now().UTC()
	return &User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Created:  now,
		Updated:  now,
		Admin:    admin,
	}
}

func (u *User) SetPassword(password string, cost int) error {
	if cost == 0 {
		cost = DefaultHashCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	u.Hash = hash
	return nil
}

func (u *User) PasswordMatches(input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(u.Hash, []byte(input))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			//invalid password
			return false, nil
		default:
			//unknown error
			return false, err
		}
	}

	return true, nil
}

// Sanitize drops the password hash before a user is handed to a template.
func (u *User) Sanitize() {
	u.Hash = nil
}
