/*
Package log provides structured logging for the store core using zerolog.

It wraps zerolog to give every subsystem (store, pipeline, change log, raft)
JSON-structured logs with a consistent set of context fields, so a single
write or query can be traced across layer crossings by account_id,
collection, document_id, or term/index.

# Levels

Debug is used for per-key KV operations and bitmap merges; Info for batch
commits, leadership changes, and compaction runs; Warn for retried Raft RPCs
and near-quota blob stores; Error for anything that surfaces a
jmaperr.KindInternalError or jmaperr.KindDataCorruption to the caller.
Data-corruption errors additionally carry a quarantine=true field and are
never logged at a level below Error, since they are never auto-retried.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithAccount(uint32(accountID)).With().
		Stringer("collection", collection).Logger()
	logger.Debug().Uint32("document_id", uint32(docID)).Msg("document inserted")
*/
package log
