package scheduler

import "github.com/redis/go-redis/v9"

// KEYS: due, payload, inflight, inflight_payload
// ARGV: now_ms, lease_until_ms, limit
// Returns a flat list of key, envelope pairs. A key already in flight stays due.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
local out = {}
for _, key in ipairs(due) do
	if not redis.call('ZSCORE', KEYS[3], key) then
		local env = redis.call('HGET', KEYS[2], key)
		redis.call('ZREM', KEYS[1], key)
		redis.call('HDEL', KEYS[2], key)
		if env then
			redis.call('ZADD', KEYS[3], ARGV[2], key)
			redis.call('HSET', KEYS[4], key, env)
			table.insert(out, key)
			table.insert(out, env)
		end
	end
end
return out
`)

// KEYS: inflight, inflight_payload
// ARGV: key, lease_ms
var ackScript = redis.NewScript(`
local lease = redis.call('ZSCORE', KEYS[1], ARGV[1])
if lease and tonumber(lease) == tonumber(ARGV[2]) then
	redis.call('ZREM', KEYS[1], ARGV[1])
	redis.call('HDEL', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// KEYS: due, payload, inflight, inflight_payload
// ARGV: key, lease_ms, retry_at_ms
// Returns 1 when requeued, 2 when a newer schedule exists, 0 when the lease was lost.
var retryScript = redis.NewScript(`
local lease = redis.call('ZSCORE', KEYS[3], ARGV[1])
if not lease or tonumber(lease) ~= tonumber(ARGV[2]) then
	return 0
end
local env = redis.call('HGET', KEYS[4], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 2
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], env)
return 1
`)

// KEYS: due, payload, inflight, inflight_payload
// ARGV: now_ms, limit
// Returns the number of expired leases processed.
var requeueScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, key in ipairs(expired) do
	local env = redis.call('HGET', KEYS[4], key)
	redis.call('ZREM', KEYS[3], key)
	redis.call('HDEL', KEYS[4], key)
	if env and not redis.call('ZSCORE', KEYS[1], key) then
		redis.call('ZADD', KEYS[1], ARGV[1], key)
		redis.call('HSET', KEYS[2], key, env)
	end
end
return #expired
`)
