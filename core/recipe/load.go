package recipe

import (
	"os"
)

// LoadFile reads and validates a recipe from path, resolving ${VAR}
// environment references before shell validation runs. It returns the
// parsed recipe plus any non-fatal warnings, or a fatal *ConfigError.
func LoadFile(path string) (*Recipe, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, newConfigErr(ErrParse, "", "read %s: %v", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates a recipe already read into memory.
func LoadBytes(data []byte) (*Recipe, []Warning, error) {
	raw, err := decodeRawRecipe(data)
	if err != nil {
		return nil, nil, newConfigErr(ErrParse, "", "%v", err)
	}
	rec, warnings, err := build(raw)
	if err != nil {
		return nil, warnings, err
	}
	resolveEnv(rec)
	// Shell validation must see the final literal text, so re-validate
	// shell/script commands after substitution in case a variable
	// introduced a disallowed metacharacter.
	if err := validateShellCommands(rec); err != nil {
		return nil, warnings, err
	}
	return rec, warnings, nil
}
