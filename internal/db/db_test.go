package db

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrationCreatesTables(t *testing.T) {
	database := setupTestDB(t)

	for _, table := range []string{"mappings", "logs", "settings"} {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestSettings(t *testing.T) {
	database := setupTestDB(t)

	value, err := database.GetSetting("bridge_url")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value for missing key, got %q", value)
	}

	if err := database.SetSetting("bridge_url", "http://localhost:9000"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := database.SetSetting("bridge_url", "http://localhost:9001"); err != nil {
		t.Fatalf("SetSetting upsert failed: %v", err)
	}

	value, err = database.GetSetting("bridge_url")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if value != "http://localhost:9001" {
		t.Errorf("expected upserted value, got %q", value)
	}
}

func TestGoalLog(t *testing.T) {
	database := setupTestDB(t)

	logID, err := database.LogGoal("session-1", "make a wooden table")
	if err != nil {
		t.Fatalf("LogGoal failed: %v", err)
	}

	if err := database.CompleteGoal(logID, "furniture.table", 0.82, "ready", "", 12); err != nil {
		t.Fatalf("CompleteGoal failed: %v", err)
	}

	var status, workflowID string
	var confidence float64
	err = database.Conn().QueryRow(
		"SELECT status, workflow_id, confidence FROM logs WHERE id = ?", logID,
	).Scan(&status, &workflowID, &confidence)
	if err != nil {
		t.Fatalf("failed to read log row: %v", err)
	}
	if status != "ready" || workflowID != "furniture.table" || confidence != 0.82 {
		t.Errorf("unexpected log row: %s %s %g", status, workflowID, confidence)
	}
}
