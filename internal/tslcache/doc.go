// Package tslcache caches product models (TSL documents) by product key.
//
// The dispatch loop's workers consult the cache to type inbound service
// input, and the driver API exposes raw documents through its TSL getter.
// Misses are fetched from the configuration manager; a SQLiteStore keeps
// documents across restarts so a driver can type calls before the daemon
// answers.
package tslcache
