package model

import "time"

// User 账号；Password 为 bcrypt 摘要，永不序列化
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username  string    `json:"username" gorm:"type:varchar(64);uniqueIndex:ux_users_username;not null"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// Author users 表的只读投影，帖子中只展示 id/username
type Author struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Username string `json:"username"`
}

func (Author) TableName() string { return "users" }
