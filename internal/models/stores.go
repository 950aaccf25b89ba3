package models

import "github.com/jackc/pgx/v5/pgxpool"

// Stores bundles every Postgres store behind one value.
type Stores struct {
	*SourceStore
	*ItemStore
	*PostStore
	*EngagementStore
	*SnapshotStore
}

// NewStores builds all stores over one pool.
func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		SourceStore:     NewSourceStore(pool),
		ItemStore:       NewItemStore(pool),
		PostStore:       NewPostStore(pool),
		EngagementStore: NewEngagementStore(pool),
		SnapshotStore:   NewSnapshotStore(pool),
	}
}
