// Package database provides the PostgreSQL connection pool used by the
// session store.
//
// The pool is optional: without a configured host shardgate keeps shard
// sessions in memory and loses them on restart.
package database
