package domain

import "time"

// Account is a registered identity. Accounts are written once a verified
// email completes registration.
type Account struct {
	AccountID    string    `json:"id" dynamodbav:"account_id"`
	Email        string    `json:"email" dynamodbav:"email"`
	Username     string    `json:"username" dynamodbav:"username"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	ClientID     string    `json:"client_id,omitempty" dynamodbav:"client_id"`
	Referer      string    `json:"-" dynamodbav:"referer"`
	Traffic      string    `json:"-" dynamodbav:"traffic_source"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
}

type CompleteRegistrationRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}
