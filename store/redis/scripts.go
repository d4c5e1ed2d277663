package redis

import "github.com/redis/go-redis/v9"

// Script result codes.
const (
	codeOK              = 1
	codeNotFound        = 0
	codeLeaseLost       = -1
	codeNotDeadLettered = -2
)

// insertScript writes a job unless an active job holds its idempotency key.
//
// KEYS: job, pending, active_keys, job_ids
// ARGV: id, idempotency key, next_run_at, field/value pairs...
var insertScript = redis.NewScript(`
if ARGV[2] ~= '' then
  local existing = redis.call('HGET', KEYS[3], ARGV[2])
  if existing then return {0, existing} end
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[4], 0, ARGV[1])
if ARGV[2] ~= '' then redis.call('HSET', KEYS[3], ARGV[2], ARGV[1]) end
return {1, ARGV[1]}
`)

// claimScript leases up to limit due jobs: pending jobs whose next_run_at
// has passed and running jobs whose lease has expired.
//
// KEYS: pending, leased
// ARGV: now, limit, lease until, worker id, job key prefix, scan window
var claimScript = redis.NewScript(`
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[6])
local candidates = {}
local function consider(ids)
  for _, jid in ipairs(ids) do
    local f = redis.call('HMGET', ARGV[5] .. jid, 'priority', 'next_run_at', 'disabled_at')
    if not f[3] or f[3] == '' then
      table.insert(candidates, {id = jid, priority = tonumber(f[1]) or 0, run = tonumber(f[2]) or 0})
    end
  end
end
consider(redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, window))
consider(redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1], 'LIMIT', 0, window))
table.sort(candidates, function(a, b)
  if a.priority ~= b.priority then return a.priority > b.priority end
  if a.run ~= b.run then return a.run < b.run end
  return a.id < b.id
end)
local out = {}
for i = 1, math.min(limit, #candidates) do
  local c = candidates[i]
  local key = ARGV[5] .. c.id
  redis.call('HSET', key, 'status', 'running', 'worker_id', ARGV[4],
    'last_run_at', ARGV[1], 'lease_expires_at', ARGV[3], 'updated_at', ARGV[1])
  redis.call('ZREM', KEYS[1], c.id)
  redis.call('ZADD', KEYS[2], ARGV[3], c.id)
  table.insert(out, redis.call('HGETALL', key))
end
return out
`)

// heldPrelude guards the lease-conditional scripts below. It returns early
// unless ARGV[1] holds the job's lease and defines release and untrack.
//
// KEYS: job, pending, leased, active_keys
// ARGV: worker id, now, ...
const heldPrelude = `
local f = redis.call('HMGET', KEYS[1], 'status', 'worker_id', 'id', 'idempotency_key')
if not f[3] then return 0 end
if f[1] ~= 'running' or f[2] ~= ARGV[1] then return -1 end
local jid, ikey = f[3], f[4]
local function release()
  redis.call('HSET', KEYS[1], 'worker_id', '', 'lease_expires_at', '', 'updated_at', ARGV[2])
  redis.call('ZREM', KEYS[3], jid)
end
local function untrack()
  if ikey and ikey ~= '' and redis.call('HGET', KEYS[4], ikey) == jid then
    redis.call('HDEL', KEYS[4], ikey)
  end
end
`

// ARGV[3]: lease until
var heartbeatScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'lease_expires_at', ARGV[3], 'updated_at', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], jid)
return 1
`)

var completeScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'status', 'succeeded', 'error_message', '', 'error_kind', '')
release()
untrack()
return 1
`)

// ARGV[3]: next run
var rescheduleScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'status', 'pending', 'next_run_at', ARGV[3], 'retry_count', '0',
  'error_message', '', 'error_kind', '')
release()
redis.call('ZADD', KEYS[2], ARGV[3], jid)
return 1
`)

// ARGV[3]: next run, ARGV[4]: error message, ARGV[5]: error kind
var retryScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'status', 'pending', 'next_run_at', ARGV[3],
  'error_message', ARGV[4], 'error_kind', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'retry_count', 1)
release()
redis.call('ZADD', KEYS[2], ARGV[3], jid)
return 1
`)

// ARGV[3]: error message, ARGV[4]: error kind, ARGV[5]: reason
var deadLetterScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'status', 'dead_letter', 'error_message', ARGV[3], 'error_kind', ARGV[4],
  'dead_lettered_at', ARGV[2], 'dead_letter_reason', ARGV[5])
release()
untrack()
return 1
`)

// ARGV[3]: run at
var releaseScript = redis.NewScript(heldPrelude + `
redis.call('HSET', KEYS[1], 'status', 'pending', 'next_run_at', ARGV[3])
release()
redis.call('ZADD', KEYS[2], ARGV[3], jid)
return 1
`)

// requeueScript returns a dead-lettered job to pending unless another
// active job now holds its key.
//
// KEYS: job, pending, active_keys
// ARGV: now, run at
var requeueScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'status', 'id', 'idempotency_key')
if not f[2] then return {0, ''} end
if f[1] ~= 'dead_letter' then return {-2, ''} end
local ikey = f[3]
if ikey and ikey ~= '' then
  local existing = redis.call('HGET', KEYS[3], ikey)
  if existing then return {1, existing} end
end
redis.call('HSET', KEYS[1], 'status', 'pending', 'next_run_at', ARGV[2], 'retry_count', '0',
  'error_message', '', 'error_kind', '', 'dead_lettered_at', '', 'dead_letter_reason', '',
  'updated_at', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], f[2])
if ikey and ikey ~= '' then redis.call('HSET', KEYS[3], ikey, f[2]) end
return {1, f[2]}
`)

// KEYS: job
// ARGV: now, "1" to disable or "0" to enable
var disableScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
if ARGV[2] == '1' then
  local cur = redis.call('HGET', KEYS[1], 'disabled_at')
  if not cur or cur == '' then redis.call('HSET', KEYS[1], 'disabled_at', ARGV[1]) end
else
  redis.call('HSET', KEYS[1], 'disabled_at', '')
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
return 1
`)
