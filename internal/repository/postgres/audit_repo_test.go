package postgres

import "testing"

// sql.Open ленивый: соединение не устанавливается, пока не случится запрос,
// поэтому размер пула проверяем без живой базы.
func TestNewAuditRepoPoolSize(t *testing.T) {
	tests := []struct {
		name     string
		maxConns int
		want     int
	}{
		{"configured value applied", 7, 7},
		{"zero falls back to default", 0, 25},
		{"negative falls back to default", -1, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewAuditRepo("postgres://localhost:5432/audit", tt.maxConns)
			defer repo.Close()

			if got := repo.db.Stats().MaxOpenConnections; got != tt.want {
				t.Errorf("MaxOpenConnections = %d, want %d", got, tt.want)
			}
		})
	}
}
