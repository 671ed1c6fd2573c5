package docstore

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder. Keys of different environments never collide; an empty environment
// maps to "prod".
func NewKeyBuilder(environment string) *KeyBuilder {
	if environment == "" {
		environment = "prod"
	}
	return &KeyBuilder{prefix: "rpansync:" + environment}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// Prefix returns the current environment prefix
func (kb *KeyBuilder) Prefix() string {
	return kb.prefix
}

// KeyDocument is the hash holding one document.
func (kb *KeyBuilder) KeyDocument(collection, id string) string {
	return kb.BuildKey(fmt.Sprintf("doc:%s:%s", collection, id))
}

// KeyCollection is the set of document IDs in a collection.
func (kb *KeyBuilder) KeyCollection(collection string) string {
	return kb.BuildKey(fmt.Sprintf("collection:%s", collection))
}
