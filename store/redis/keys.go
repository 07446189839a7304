package redis

// Redis key naming conventions for orchestrator data.
// All keys are prefixed with "flowtide:" to avoid collisions.

const keyPrefix = "flowtide:"

// ── Job keys ──

// jobKey returns the key for a job Hash: flowtide:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// queueKey returns the Sorted Set key for a queue, scored by RunAt:
// flowtide:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// ── Schedule keys ──

// entryKey returns the key for a schedule entry value: flowtide:entry:{key}
func entryKey(key string) string { return keyPrefix + "entry:" + key }

// entryLockKey returns the SetNX firing-lock key for a schedule entry:
// flowtide:entry_lock:{key}
func entryLockKey(key string) string { return keyPrefix + "entry_lock:" + key }

// entryKeysKey is the Set tracking all entry keys for enumeration.
const entryKeysKey = keyPrefix + "entry_keys"
