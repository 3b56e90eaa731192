package bootstrap

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"ytdlp-telegram-bot/internal/auth"
	"ytdlp-telegram-bot/internal/domain"
	"ytdlp-telegram-bot/internal/users"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.Execute()
	return out.String(), err
}

// TestTokenCommandIssuesVerifiableCode checks offline code issuing.
func TestTokenCommandIssuesVerifiableCode(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATA_DIRECTORY", "")

	out, err := executeRoot(t, "token", "42")
	if err != nil {
		t.Fatalf("token command error = %v", err)
	}
	code := strings.TrimSpace(out)
	if err := auth.NewCodes("s3cret", 0).Verify(code, 42); err != nil {
		t.Fatalf("issued code does not verify: %v", err)
	}

	if _, err := executeRoot(t, "token", "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric user id")
	}
}

// TestUsersCommandListsRecords checks the users table.
func TestUsersCommandListsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	t.Setenv("YTBOT_USERS_FILE", path)
	t.Setenv("JWT_SECRET", "")

	store, err := users.OpenFileStore(path, nil)
	if err != nil {
		t.Fatalf("OpenFileStore() error = %v", err)
	}
	if err := store.Set("42", domain.UserRecord{UserID: 42, FirstName: "Ada", LastName: "Lovelace", Username: "ada", Auth: true}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	out, err := executeRoot(t, "users")
	if err != nil {
		t.Fatalf("users command error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(lines[1], "42") || !strings.Contains(lines[1], "Ada Lovelace") || !strings.Contains(lines[1], "true") {
		t.Fatalf("row = %q", lines[1])
	}
}
