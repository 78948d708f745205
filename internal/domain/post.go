package domain

import "time"

// Post is a text note owned by exactly one user.
// OwnerID is assigned once at creation from the authenticated caller.
type Post struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ClonePosts returns a copy of posts that never aliases the input backing array.
// A nil input yields an empty, non-nil slice.
func ClonePosts(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	return out
}
