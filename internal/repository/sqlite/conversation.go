package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kaamsetu/kaamsetu/pkg/models"
)

func (r *SQLiteRepo) GetState(ctx context.Context, phone string) (*models.ConversationState, error) {
	row := r.conn.QueryRow(ctx, `SELECT phone, step, role, context_json, updated FROM conversation_states WHERE phone = ?`, phone)
	var s models.ConversationState
	var role, contextJSON string
	if err := row.Scan(&s.Phone, &s.Step, &role, &contextJSON, &s.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}
	s.Role = models.Role(role)
	s.Context = map[string]string{}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &s.Context); err != nil {
			return nil, fmt.Errorf("decode conversation context: %w", err)
		}
	}

	return &s, nil
}

func (r *SQLiteRepo) SaveState(ctx context.Context, s *models.ConversationState) error {
	if s == nil {
		return fmt.Errorf("state is nil")
	}
	if s.Phone == "" {
		return fmt.Errorf("state phone is empty")
	}
	if s.Context == nil {
		s.Context = map[string]string{}
	}

	b, err := json.Marshal(s.Context)
	if err != nil {
		return fmt.Errorf("encode conversation context: %w", err)
	}

	_, err = r.conn.Exec(ctx, `INSERT INTO conversation_states (phone, step, role, context_json, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET step=excluded.step, role=excluded.role, context_json=excluded.context_json, updated=excluded.updated`,
		s.Phone, s.Step, string(s.Role), string(b), now())
	return err
}

func (r *SQLiteRepo) DeleteState(ctx context.Context, phone string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM conversation_states WHERE phone = ?`, phone)
	return err
}
