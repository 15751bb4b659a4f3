package persistence

import "testing"

func TestMigrationURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://u:p@db:5432/app?sslmode=disable", "pgx5://u:p@db:5432/app?sslmode=disable"},
		{"postgresql://u:p@db:5432/app", "pgx5://u:p@db:5432/app"},
		{"pgx5://u:p@db:5432/app", "pgx5://u:p@db:5432/app"},
	}
	for _, tt := range tests {
		if got := MigrationURL(tt.in); got != tt.want {
			t.Errorf("MigrationURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected up and down migrations, got %d files", len(entries))
	}
}
