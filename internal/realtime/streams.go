package realtime

// Named realtime streams.
const (
	// StreamSyncStatus carries connectivity, offline mode, and drain results.
	StreamSyncStatus = "sync.status"
	// StreamCacheEvents carries invalidation notices so views can refetch.
	StreamCacheEvents = "cache.events"
)

// KnownStreams lists the streams clients may subscribe to.
func KnownStreams() map[string]struct{} {
	return map[string]struct{}{
		StreamSyncStatus:  {},
		StreamCacheEvents: {},
	}
}
