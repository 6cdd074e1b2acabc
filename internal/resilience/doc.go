// Package resilience groups the fault tolerance helpers used by the review pipeline.
//
// The subpackages provide:
//   - circuitbreaker: breakers around the App Store Connect API and the database
//   - retry: exponential backoff with jitter, honoring Retry-After on HTTP errors
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.AppStoreAPIConfig())
//	err := retry.WithBackoff(ctx, retry.AppStoreAPIConfig(), func() error {
//	    return cb.Do(fetchPage)
//	})
//
//	db := circuitbreaker.NewDB(sqlDB)
//	rows, err := db.QueryContext(ctx, "SELECT id FROM reviews WHERE app_id = $1", appID)
package resilience
