package model

// All lists the tables owned by the service, in creation order.
func All() []any {
	return []any{
		&User{},
		&Document{},
		&DocumentVersion{},
		&Page{},
		&Chunk{},
		&Embedding{},
		&Event{},
	}
}
