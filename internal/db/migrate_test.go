package db

import "testing"

func TestPgx5URL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/gamefolio":   "pgx5://u:p@localhost:5432/gamefolio",
		"postgresql://u:p@localhost:5432/gamefolio": "pgx5://u:p@localhost:5432/gamefolio",
		"pgx5://localhost/gamefolio":                "pgx5://localhost/gamefolio",
	}

	for in, want := range tests {
		if got := pgx5URL(in); got != want {
			t.Errorf("pgx5URL(%q) = %q, want %q", in, got, want)
		}
	}
}
