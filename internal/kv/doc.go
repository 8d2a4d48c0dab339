// Package kv provides the key-value persistence behind the token store.
//
// Three backends implement Store: Memory (process local), SQLite (a single
// file via modernc.org/sqlite) and Valkey (a shared server with native
// expiry). Open selects one from configuration and layers key prefixing and
// AES-GCM encryption at rest on top.
package kv
