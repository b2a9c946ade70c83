package vecdb

import (
	"context"
	"fmt"
)

// Close releases the record store. It is safe to call more than once;
// later calls return the first result.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	db.closeOnce.Do(func() {
		db.closeErr = db.backend.Close()
		db.logger.LogClose(context.Background(), fmt.Sprintf("%T", db.backend), db.closeErr)
	})
	return db.closeErr
}
