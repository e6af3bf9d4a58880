package model

import "time"

// Post 博客文章
type Post struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title    string `json:"title" gorm:"type:varchar(255);not null"`
	Summary  string `json:"summary" gorm:"type:text"`
	Content  string `json:"content" gorm:"type:text"`
	Cover    string `json:"cover" gorm:"type:varchar(1024)"`
	CoverRef string `json:"-" gorm:"type:varchar(512)"` // 图床侧的资源标识，用于清理
	AuthorID string `json:"authorId" gorm:"type:varchar(36);index:idx_post_author;not null"`
	// Author 读取时预加载（仅 id/username）
	Author    *Author   `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_post_created"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Post) TableName() string { return "posts" }
