package sqlite

import "database/sql"

var FormatTime = formatTime

func (s *SQLite) DB() *sql.DB {
	return s.db
}
