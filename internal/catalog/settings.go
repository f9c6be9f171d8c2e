package catalog

import (
	"context"
	"fmt"
	"strings"
)

// ProviderSettings returns every stored provider setting ordered by display
// order, then name.
func (s *Store) ProviderSettings(ctx context.Context) ([]ProviderSetting, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT provider, display_order, enabled FROM provider_settings ORDER BY display_order, provider")
	if err != nil {
		return nil, fmt.Errorf("list provider settings: %w", err)
	}
	defer rows.Close()
	var settings []ProviderSetting
	for rows.Next() {
		var ps ProviderSetting
		if err := rows.Scan(&ps.Provider, &ps.DisplayOrder, &ps.Enabled); err != nil {
			return nil, err
		}
		settings = append(settings, ps)
	}
	return settings, rows.Err()
}

// SyncProviderSettings upserts the given settings.
func (s *Store) SyncProviderSettings(ctx context.Context, settings []ProviderSetting) error {
	return s.InTx(ctx, func(tx *Store) error {
		for _, ps := range settings {
			name := strings.ToLower(strings.TrimSpace(ps.Provider))
			if name == "" {
				continue
			}
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO provider_settings (provider, display_order, enabled) VALUES (?, ?, ?)
                ON CONFLICT (provider) DO UPDATE SET display_order = excluded.display_order, enabled = excluded.enabled`,
				name, ps.DisplayOrder, ps.Enabled,
			)
			if err != nil {
				return fmt.Errorf("upsert provider setting %s: %w", name, err)
			}
		}
		return nil
	})
}
