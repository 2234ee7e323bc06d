// Package pagination follows STAT result sets across pages.
//
// STAT returns at most `results` records per call and links the next slice
// through a relative `nextpage` reference in the response envelope. A Pager
// walks that chain sequentially for one query:
//
//	pager := pagination.NewPager(statClient, builder, pagination.DefaultConfig())
//	records, err := pager.Fetch(ctx, request.Keywords("12"))
//
// Failure policy:
//   - a non-2xx status ends the session and returns what was gathered so far
//   - transport failures, malformed envelopes and runaway continuation chains
//     are fatal and reported as *Error
//
// A BatchFetcher runs several independent queries (one per site, say) on a
// bounded worker pool and keeps results in query order.
package pagination
