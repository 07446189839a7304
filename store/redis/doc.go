// Package redis implements the queue store (jobs and schedule
// entries) on Redis. Jobs are stored as Hashes with one Sorted Set per
// queue scored by RunAt; schedule entries are JSON values with SetNX
// firing locks. All keys carry the "flowtide:" prefix.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
