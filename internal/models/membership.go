// internal/models/membership.go
package models

import "time"

type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
)

// GroupMembership is created once per (group, member).
type GroupMembership struct {
	GroupID             string     `json:"groupId"`
	MemberID            string     `json:"memberId"`
	Role                MemberRole `json:"role"`
	SourceApplicationID string     `json:"sourceApplicationId,omitempty"`
	JoinedAt            time.Time  `json:"joinedAt"`
}

func (m GroupMembership) IsAdmin() bool { return m.Role == RoleAdmin }
