package storage

// storage contains the KeyValue interface for working with a persistent key/
// value store, as well as implementations for BadgerDB and for an in-process
// map. Note that the storage package isn't designed to represent _what_ is
// stored in the database, and deals only in opaque binary data. Deciding
// which records to reclaim is left to a Filter supplied by the caller.
