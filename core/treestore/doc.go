// Package treestore reads the hierarchical source tree.
//
// The tree is a nested JSON value addressed by key paths. Two drivers
// exist: RTDBStore reads a Firebase Realtime Database over REST with Google
// credentials, and FileStore reads a JSON export from disk.
//
// Values come back as map[string]any, []any, string, bool, int64 or
// float64. A path with nothing stored under it reads as nil.
package treestore
