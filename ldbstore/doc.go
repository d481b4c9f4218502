// Package ldbstore implements a cfrstore.DurableStore that keeps records
// on disk in a LevelDB database.
//
// LevelDB is the default cold tier: it is pure Go, needs no cgo, and is
// registered under the engine name "leveldb".
package ldbstore
