package config

// Backend abstracts the config storage so tests can substitute a map.
type Backend interface {
	GetString(key string) (string, bool, error)
	GetInt(key string) (int, bool, error)
	GetBool(key string) (bool, bool, error)
	// GetJSON decodes a structured value (lists, rule objects) into out,
	// leaving out untouched when the key is absent.
	GetJSON(key string, out any) error
}
