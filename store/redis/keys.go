package redis

// Redis key naming conventions. The braces form a hash tag so every key
// maps to the same cluster slot, which the Lua scripts require.
const keyPrefix = "{cascade}:"

// jobKey returns the Hash key for a job: {cascade}:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

const (
	// pendingKey is the Sorted Set of pending jobs scored by next_run_at.
	pendingKey = keyPrefix + "pending"
	// leasedKey is the Sorted Set of running jobs scored by lease expiry.
	leasedKey = keyPrefix + "leased"
	// activeKeysKey maps idempotency keys to the active job holding them.
	activeKeysKey = keyPrefix + "active_keys"
	// jobIDsKey is the Sorted Set of every job ID, all scored 0 so members
	// order lexicographically, which for TypeIDs is creation order.
	jobIDsKey = keyPrefix + "job_ids"
)
