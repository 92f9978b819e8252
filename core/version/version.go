package version

const (
	// RecipeSchemaVersion is the "version" field every recipe file must
	// declare; bump when the YAML schema changes incompatibly.
	RecipeSchemaVersion = "1"
	// Daemon is krilld/krill's own release version.
	Daemon = "v0.1.0"
)
