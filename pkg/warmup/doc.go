// Package warmup pre-populates the response cache before traffic arrives.
//
// The free football-data tier allows about ten requests per minute, so a
// cold gateway answering a burst of first requests would spend most of its
// budget waiting. The warmer walks (league, matchday) pairs with a bounded
// worker pool and loads each one through the gateway's cache path.
//
// Example usage:
//
//	warmer := warmup.NewWarmer(gw, warmup.DefaultConfig())
//	summary := warmer.Run(ctx, []string{"PL", "BL1"}, 1, 38)
//
// The warmer:
//   - Queues one job per league and matchday
//   - Runs them on an ants worker pool (default 2 workers)
//   - Bounds every job with its own timeout
//   - Logs and counts failures without stopping the run
//   - Stops handing out jobs once ctx is done
package warmup
