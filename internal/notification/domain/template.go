package domain

import "time"

// Template is a reusable notification body with {{variable}} placeholders,
// rendered per recipient before job creation.
type Template struct {
	ID        string    `db:"template_id"`
	Name      string    `db:"name"`
	Channel   Channel   `db:"channel"`
	Subject   string    `db:"subject"`
	Content   string    `db:"content"`
	Variables []string  `db:"-"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
