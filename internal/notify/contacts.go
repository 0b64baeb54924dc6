package notify

import (
	"context"
	"database/sql"
	"fmt"

	"ican-workers/internal/models"

	"github.com/lib/pq"
)

// PostgresContacts reads notification contacts from the users table.
type PostgresContacts struct {
	db *sql.DB
}

func NewPostgresContacts(db *sql.DB) *PostgresContacts {
	return &PostgresContacts{db: db}
}

func (p *PostgresContacts) Contacts(ctx context.Context, userIDs []string) ([]models.Contact, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, email, COALESCE(display_name, '')
		FROM users
		WHERE id = ANY($1) AND email IS NOT NULL`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.UserID, &c.Email, &c.DisplayName); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
