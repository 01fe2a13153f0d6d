package model

import "time"

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "Y"
	AccountStatusClosed AccountStatus = "N"
)

// Account is only what the integrity checks need to resolve a reference.
type Account struct {
	ID        int64         `json:"id"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}
