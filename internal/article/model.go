package article

import (
	"time"
)

type Article struct {
	ID           string    `bson:"_id" json:"id"`
	Title        string    `bson:"title" json:"title"`
	Content      string    `bson:"content" json:"content"`
	Summary      string    `bson:"summary" json:"summary"`
	Category     string    `bson:"category" json:"category"`
	AuthorName   string    `bson:"authorName" json:"authorName"`
	AuthorID     string    `bson:"authorId" json:"authorId"`
	ImageURL     string    `bson:"imageUrl" json:"imageUrl"`
	ImageCaption string    `bson:"imageCaption" json:"imageCaption"`
	Slug         string    `bson:"slug" json:"slug"`
	Views        int64     `bson:"views" json:"views"`
	CommentCount int64     `bson:"commentCount" json:"commentCount"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Input is what the admin form submits. Content is editor HTML and is stored as-is.
type Input struct {
	Title        string `json:"title" validate:"required,max=200"`
	Content      string `json:"content" validate:"required"`
	Summary      string `json:"summary" validate:"max=500"`
	Category     string `json:"category" validate:"required,max=50"`
	AuthorName   string `json:"authorName" validate:"required,max=100"`
	ImageURL     string `json:"imageUrl" validate:"omitempty,url,startswith=https://"`
	ImageCaption string `json:"imageCaption" validate:"max=300"`
	Slug         string `json:"slug,omitempty"`
}

type Comment struct {
	ID           string    `bson:"_id" json:"id"`
	ArticleID    string    `bson:"articleId" json:"articleId"`
	Text         string    `bson:"text" json:"text"`
	UserID       string    `bson:"userId" json:"userId"`
	UserName     string    `bson:"userName" json:"userName"`
	ParentID     string    `bson:"parentId,omitempty" json:"parentId,omitempty"`
	Edited       bool      `bson:"edited" json:"edited"`
	OriginalText string    `bson:"originalText,omitempty" json:"originalText,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

type CommentInput struct {
	Text     string `json:"text" validate:"required,max=2000"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName" validate:"max=100"`
	ParentID string `json:"parentId,omitempty"`
}

// ViewRecord is the raw view trail, kept apart from the Article.Views counter.
type ViewRecord struct {
	ID        string    `bson:"_id" json:"id"`
	ArticleID string    `bson:"articleId" json:"articleId"`
	UserID    string    `bson:"userId,omitempty" json:"userId,omitempty"`
	Count     int64     `bson:"count" json:"count"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type SavedArticle struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	ArticleID string    `bson:"articleId" json:"articleId"`
	SavedAt   time.Time `bson:"savedAt" json:"savedAt"`
}
