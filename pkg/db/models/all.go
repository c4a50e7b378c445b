package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and SQLite development databases.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
	}
}
