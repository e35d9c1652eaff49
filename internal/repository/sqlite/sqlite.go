package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"prosopography/internal/domain"
	"prosopography/internal/repository"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db       *sql.DB
	registry *domain.Registry
	hooks    repository.Hooks
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository. A nil registry selects the default
// catalog kinds. Use ":memory:" for an in-memory database.
func New(dbPath string, registry *domain.Registry) (*Repository, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register sql functions: %w", err)
	}
	if registry == nil {
		registry = domain.DefaultRegistry()
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Hooks read their own writes through the transaction; one connection
	// also keeps an in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, registry: registry}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func dsn(path string) string {
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		status TEXT,
		attrs JSON NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS uris (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uri TEXT NOT NULL UNIQUE,
		domain TEXT,
		entity_id INTEGER NOT NULL,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		label_type TEXT,
		language TEXT,
		entity_id INTEGER NOT NULL,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS user_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS collections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS collection_groups (
		collection_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		PRIMARY KEY (collection_id, group_id),
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
		FOREIGN KEY (group_id) REFERENCES user_groups(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS entity_collections (
		entity_id INTEGER NOT NULL,
		collection_id INTEGER NOT NULL,
		PRIMARY KEY (entity_id, collection_id),
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS object_permissions (
		group_id INTEGER NOT NULL,
		codename TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		PRIMARY KEY (group_id, codename, entity_id),
		FOREIGN KEY (group_id) REFERENCES user_groups(id) ON DELETE CASCADE,
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS revisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		version INTEGER NOT NULL,
		digest TEXT NOT NULL,
		snapshot JSON NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (entity_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind, id);
	CREATE INDEX IF NOT EXISTS idx_uris_entity ON uris(entity_id);
	CREATE INDEX IF NOT EXISTS idx_labels_entity ON labels(entity_id);
	CREATE INDEX IF NOT EXISTS idx_entity_collections_collection ON entity_collections(collection_id);
	CREATE INDEX IF NOT EXISTS idx_collection_groups_group ON collection_groups(group_id);
	CREATE INDEX IF NOT EXISTS idx_object_permissions_entity ON object_permissions(entity_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Registry returns the kind registry the repository decodes entities with
func (r *Repository) Registry() *domain.Registry {
	return r.registry
}

// OnSave registers a hook run after every entity save
func (r *Repository) OnSave(h repository.SaveHook) {
	r.hooks.Save = append(r.hooks.Save, h)
}

// OnMembership registers a hook run around collection membership changes
func (r *Repository) OnMembership(h repository.MembershipHook) {
	r.hooks.Membership = append(r.hooks.Membership, h)
}

// OnGroups registers a hook run around allowed-group changes
func (r *Repository) OnGroups(h repository.GroupHook) {
	r.hooks.Groups = append(r.hooks.Groups, h)
}

// Atomic runs fn in a transaction, committing when it returns nil
func (r *Repository) Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return r.withTx(ctx, func(t *txStore) error {
		return fn(ctx, t)
	})
}

// withTx runs fn in a transaction, committing when it returns nil
func (r *Repository) withTx(ctx context.Context, fn func(t *txStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx, registry: r.registry, hooks: &r.hooks}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
