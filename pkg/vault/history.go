package vault

import (
	"context"
	"database/sql"
	"fmt"
)

// History is one recorded field change.
type History struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	FieldName string `json:"field_name"`
	OldValue  string `json:"old_value"`
	NewValue  string `json:"new_value"`
	ChangedAt string `json:"changed_at"`
}

func insertHistory(ctx context.Context, tx *sql.Tx, accountID int64, field, oldVal, newVal string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO account_history (account_id, field_name, old_value, new_value) VALUES (?, ?, ?, ?)",
		accountID, field, nullable(oldVal), nullable(newVal))
	if err != nil {
		return fmt.Errorf("vault: failed to record change (account_id=%d, field=%s): %w", accountID, field, err)
	}
	return nil
}

// History returns the change log of an account, newest first. Deleted
// accounts keep their history until purged.
func (v *Vault) History(ctx context.Context, accountID int64) ([]*History, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	rows, err := v.db.QueryContext(ctx, `SELECT id, account_id, field_name, old_value, new_value, changed_at
		FROM account_history WHERE account_id = ? ORDER BY changed_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to query history: %w", err)
	}
	defer rows.Close()

	out := []*History{}
	for rows.Next() {
		var (
			h        History
			old, neu sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.AccountID, &h.FieldName, &old, &neu, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("vault: failed to scan history: %w", err)
		}
		h.OldValue, h.NewValue = old.String, neu.String
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: failed to iterate history: %w", err)
	}
	return out, nil
}
