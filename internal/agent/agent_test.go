package agent_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"attriflow/internal/agent"
	"attriflow/internal/testsupport"
)

func TestValidateReadOnlyQuery(t *testing.T) {
	t.Run("allows valid SELECT queries", func(t *testing.T) {
		valid := []string{
			"SELECT * FROM customer_journeys",
			"select * from customer_journeys",
			"SELECT COUNT(*) FROM touchpoints WHERE journey_id = 1",
			"SELECT channel, SUM(credit) FROM attribution_results GROUP BY channel",
			"SELECT * FROM customer_journeys WHERE journey_end >= datetime('now', '-7 days')",
			"SELECT * FROM touchpoints WHERE landing_page = '/delete-account'",
			"SELECT * FROM touchpoints WHERE landing_page LIKE '%update%'",
			"WITH closed AS (SELECT id FROM customer_journeys WHERE status = 'completed') SELECT COUNT(*) FROM closed",
		}

		for _, q := range valid {
			if err := agent.ValidateReadOnlyQuery(q); err != nil {
				t.Errorf("expected valid query %q to pass, got error: %v", q, err)
			}
		}
	})

	t.Run("blocks non-SELECT queries", func(t *testing.T) {
		invalid := []string{
			"INSERT INTO customer_journeys VALUES (1, 2, 3)",
			"UPDATE attribution_models SET is_default = 1",
			"DELETE FROM attribution_results",
			"DROP TABLE customer_journeys",
			"CREATE TABLE evil (id INT)",
			"ALTER TABLE touchpoints ADD COLUMN evil TEXT",
			"TRUNCATE attribution_results",
		}

		for _, q := range invalid {
			if err := agent.ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected invalid query %q to fail", q)
			}
		}
	})

	t.Run("blocks queries with comments", func(t *testing.T) {
		invalid := []string{
			"SELECT * FROM customer_journeys /* comment */",
			"SELECT * FROM customer_journeys -- comment",
			"SELECT * FROM customer_journeys; DEL/**/ETE FROM users",
		}

		for _, q := range invalid {
			if err := agent.ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected query with comments %q to fail", q)
			}
		}
	})

	t.Run("blocks multiple statements", func(t *testing.T) {
		invalid := []string{
			"SELECT 1; SELECT 2;",
			"SELECT * FROM customer_journeys; SELECT * FROM users;",
			"SELECT * FROM customer_journeys; DELETE FROM attribution_results;",
		}

		for _, q := range invalid {
			if err := agent.ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected multiple statement query %q to fail", q)
			}
		}
	})

	t.Run("blocks dangerous keywords even with whitespace tricks", func(t *testing.T) {
		invalid := []string{
			"SELECT * FROM customer_journeys;\nDELETE FROM users",
			"SELECT * FROM customer_journeys;\tDROP TABLE users",
			"SELECT * FROM customer_journeys;  DELETE   FROM users",
		}

		for _, q := range invalid {
			if err := agent.ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected whitespace-obfuscated query %q to fail", q)
			}
		}
	})

	t.Run("blocks SQLite dangerous functions", func(t *testing.T) {
		invalid := []string{
			"SELECT load_extension('evil.so')",
			"SELECT writefile('/tmp/evil', 'data')",
			"SELECT readfile('/etc/passwd')",
			"PRAGMA table_info(customer_journeys)",
			"ATTACH DATABASE '/tmp/evil.db' AS evil",
		}

		for _, q := range invalid {
			if err := agent.ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected SQLite-specific dangerous query %q to fail", q)
			}
		}
	})
}

func TestGetSchema(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	response, err := agent.GetSchema(db)
	if err != nil {
		t.Fatalf("GetSchema failed: %v", err)
	}

	for _, table := range []string{"customer_journeys", "touchpoints", "attribution_models", "attribution_results"} {
		if !strings.Contains(response.Schema, table) {
			t.Errorf("schema missing table %s", table)
		}
	}
	if _, ok := response.Concepts["credits"]; !ok {
		t.Error("concepts missing credits entry")
	}
}

func TestExecuteQuery(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestJourney(t, db, "visitor-1")
	testsupport.CreateTestJourney(t, db, "visitor-2")

	response, err := agent.ExecuteQuery(context.Background(), db,
		"SELECT customer_id FROM customer_journeys ORDER BY customer_id", 5*time.Second)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}

	if response.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", response.RowCount)
	}
	if len(response.Columns) != 1 || response.Columns[0] != "customer_id" {
		t.Errorf("unexpected columns: %v", response.Columns)
	}
	if response.Rows[0][0] != "visitor-1" {
		t.Errorf("expected visitor-1 first, got %v", response.Rows[0][0])
	}

	if _, err := agent.ExecuteQuery(context.Background(), db, "DELETE FROM customer_journeys", 5*time.Second); err == nil {
		t.Error("expected write query to be rejected")
	}
}
