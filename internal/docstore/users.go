package docstore

import (
	"context"
	"fmt"
)

// UsersCollection holds one record per recipient email
const UsersCollection = "users"

// UserPassRecord is the durable record of the last pass issued to a recipient.
type UserPassRecord struct {
	Name                string
	Email               string
	PassFileLocation    string
	AuthenticationToken string
}

func (r UserPassRecord) fields() map[string]any {
	return map[string]any{
		"name":                r.Name,
		"email":               r.Email,
		"passFileLocation":    r.PassFileLocation,
		"authenticationToken": r.AuthenticationToken,
	}
}

// UserRecords reads and writes UserPassRecords in a DocumentStore.
type UserRecords struct {
	store DocumentStore
}

func NewUserRecords(store DocumentStore) *UserRecords {
	return &UserRecords{store: store}
}

// Save writes the record keyed by its email, replacing any earlier record for the same email.
func (u *UserRecords) Save(ctx context.Context, record UserPassRecord) error {
	if record.Email == "" {
		return fmt.Errorf("user record has no email")
	}
	return u.store.Upsert(ctx, UsersCollection, record.Email, record.fields())
}

// Find returns the record for email or ErrNotFound.
func (u *UserRecords) Find(ctx context.Context, email string) (UserPassRecord, error) {
	fields, err := u.store.Get(ctx, UsersCollection, email)
	if err != nil {
		return UserPassRecord{}, err
	}

	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	return UserPassRecord{
		Name:                str("name"),
		Email:               str("email"),
		PassFileLocation:    str("passFileLocation"),
		AuthenticationToken: str("authenticationToken"),
	}, nil
}
