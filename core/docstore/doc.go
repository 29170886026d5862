// Package docstore defines the target document store and its drivers.
//
// A document lives at "collection/id". Sub-collections are ordinary
// collection paths such as "chats/c1/messages", so every store treats
// them like top-level collections.
//
// # Operations
//
// Writes are expressed as Operation values: Upsert replaces a whole
// document, Delete removes it and DeleteFields strips named fields. A
// batch of operations is committed atomically by Store.CommitBatch.
//
// # Drivers
//
//   - MongoStore keeps every document in one MongoDB collection and commits
//     a batch as an ordered bulk write, optionally inside a transaction.
//   - SQLStore keeps documents in a "documents" table through GORM and
//     commits a batch inside a SQL transaction.
//
// ServerTimestamp can be used as a field value; the store replaces it with
// the commit time.
package docstore
