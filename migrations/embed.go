// Package migrations embeds the SQL schema for the device resolver and the
// invocation outcome log so the binary carries its own schema.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
