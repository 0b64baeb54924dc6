// internal/models/user.go
package models

// Contact is where a user can be reached for notifications.
type Contact struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}
