// Package events carries file lifecycle notifications over Redis Streams.
//
// Producers append flat entries to the file-events stream with XADD and an
// approximate MAXLEN cap. Consumers read through a consumer group
// (XREADGROUP/XACK); entries whose handler fails stay in the pending list
// and are retried by a periodic XPENDING/XCLAIM sweep. Entries that exhaust
// their delivery budget move to the dead-letter stream instead of blocking
// the group.
package events
