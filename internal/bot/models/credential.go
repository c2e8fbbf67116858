// Package models defines persistent domain types shared by the repositories
// and services.
package models

import "time"

// Credential is a user-supplied AI provider secret, stored encrypted.
// At most one credential per (UserID, Provider) may be active at a time.
type Credential struct {
	ID             string
	UserID         int64
	Provider       string
	SecretEnc      string
	Alias          string
	CallsRemaining int
	IsActive       bool
	CreatedAt      time.Time
}

// CredentialInfo is the listing projection returned to users. It never
// carries secret material, encrypted or otherwise.
type CredentialInfo struct {
	ID        string
	Provider  string
	Alias     string
	Remaining int
	IsActive  bool
}

// Info returns the listing projection of the credential.
func (c *Credential) Info() CredentialInfo {
	return CredentialInfo{
		ID:        c.ID,
		Provider:  c.Provider,
		Alias:     c.Alias,
		Remaining: c.CallsRemaining,
		IsActive:  c.IsActive,
	}
}
