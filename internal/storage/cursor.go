package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	"k8s.io/apimachinery/pkg/watch"
)

// ChangeWatcher hands out change streams for a URI.
type ChangeWatcher interface {
	Watch(uri string) (watch.Interface, error)
}

// Cursor is the result set of a query.
// Once a notification URI is set, Changes reports every later change of the data under it.
type Cursor struct {
	rows    *sqlx.Rows
	columns []string
	logger  *slog.Logger

	mu              sync.Mutex
	notificationURI string
	watcher         watch.Interface
}

func newCursor(rows *sqlx.Rows, columns []string, logger *slog.Logger) *Cursor {
	return &Cursor{
		rows:    rows,
		columns: columns,
		logger:  logger,
	}
}

// Columns returns the names of the projected columns.
func (c *Cursor) Columns() []string {
	columns := make([]string, len(c.columns))
	copy(columns, c.columns)

	return columns
}

func (c *Cursor) Next() bool {
	return c.rows.Next()
}

func (c *Cursor) Scan(dest ...any) error {
	if err := c.rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	return nil
}

// StructScan scans the current row into a struct tagged with db column names.
func (c *Cursor) StructScan(dest any) error {
	if err := c.rows.StructScan(dest); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	return nil
}

func (c *Cursor) MapScan(dest map[string]any) error {
	if err := c.rows.MapScan(dest); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	return nil
}

func (c *Cursor) Err() error {
	return c.rows.Err()
}

// ReadAll reads the remaining rows and closes the cursor.
func (c *Cursor) ReadAll() ([]map[string]any, error) {
	defer c.Close()

	var result []map[string]any
	for c.Next() {
		row := make(map[string]any, len(c.columns))
		if err := c.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		result = append(result, row)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return result, nil
}

// SetNotificationURI subscribes the cursor to the changes of uri, replacing any previous subscription.
// A nil watcher only records the URI.
func (c *Cursor) SetNotificationURI(watcher ChangeWatcher, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	c.notificationURI = uri

	if watcher == nil {
		return
	}

	w, err := watcher.Watch(uri)
	if err != nil {
		c.logger.Warn("Cannot observe changes", "uri", uri, "error", err)
		return
	}
	c.watcher = w
}

func (c *Cursor) NotificationURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.notificationURI
}

// Changes returns the change stream of the notification URI.
// It returns nil when the cursor observes nothing.
func (c *Cursor) Changes() <-chan watch.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == nil {
		return nil
	}

	return c.watcher.ResultChan()
}

// Close releases the rows and ends the change subscription.
func (c *Cursor) Close() error {
	c.mu.Lock()
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	c.mu.Unlock()

	if err := c.rows.Close(); err != nil {
		return fmt.Errorf("failed to close rows: %w", err)
	}

	return nil
}
