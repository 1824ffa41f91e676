package domain

import "time"

// User is a registered account. Password holds the password hash.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public returns u without the password hash.
func (u User) Public() User {
	u.Password = ""
	return u
}

type ActivityType string

const (
	ActivityTaskCreated ActivityType = "task_created"
	ActivityTaskUpdated ActivityType = "task_updated"
	ActivityTaskDeleted ActivityType = "task_deleted"
	ActivityTaskMoved   ActivityType = "task_moved"
	ActivityUserLogin   ActivityType = "user_login"
	ActivityUserLogout  ActivityType = "user_logout"
	ActivityUserSignup  ActivityType = "user_signup"
)

// ActivityLog is one entry of the activity feed.
type ActivityLog struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Type        ActivityType   `json:"type"`
	Description string         `json:"description"`
	TaskID      string         `json:"taskId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
