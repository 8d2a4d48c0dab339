// Package pathfix repairs upstream API paths guessed by language-model
// clients: missing prefixes, aliased service names, verbs used in place of
// resource collections and wrong API versions.
//
// The correction tables live in tables.go as plain data; the algorithm in
// correct.go only consults them. Fix is idempotent.
package pathfix
