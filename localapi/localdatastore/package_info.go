// Package localdatastore is the in-process implementation of the datastore_v3 service.
//
// Entities are kept in a Storage engine chosen by the service manifest: sqlite (the default, a
// file under the storage directory, or in memory when no_storage is set), memory, redis,
// dynamodb or consul. Transactions are held by the service itself; their writes are buffered and
// only reach the engine on commit.
package localdatastore
