package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/assetdrop-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestStoreConstraintsArePresent(t *testing.T) {
	tests := map[string][]string{
		"create_carts": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_active_user",
			"WHERE status = 'active' AND user_id IS NOT NULL",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_active_session",
			"CHECK ((user_id IS NULL) <> (session_id IS NULL))",
			"ux_cart_items_cart_product_variant",
			"COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid)",
			"DROP TABLE IF EXISTS carts",
		},
		"create_orders": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_payment_session_id ON orders (payment_session_id)",
			"idx_orders_payment_intent_id",
			"DROP TABLE IF EXISTS orders",
		},
		"create_download_tokens": {
			"CHECK (download_count >= 0 AND download_count <= max_downloads)",
			"ux_download_tokens_token",
			"ux_download_tokens_order_item",
		},
	}

	for suffix, checks := range tests {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}
