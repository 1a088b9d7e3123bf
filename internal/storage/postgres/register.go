package postgres

import "csvsniff/internal/storage"

func init() {
	storage.Register("postgres", New)
}
