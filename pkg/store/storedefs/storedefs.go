// Package storedefs contains definitions of the store API.
//
// It is a separate package so that packages that only depend on the store API
// does not need to depend on the concrete implementation.
package storedefs

import "errors"

// ErrNoKey is returned by Sink.Get when there is no such key.
var ErrNoKey = errors.New("no such key")

// Sink is a durable key-value store of strings.
type Sink interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Del(key string) error
	// Keys returns the keys with the given prefix, in lexical order.
	Keys(prefix string) ([]string, error)
}
