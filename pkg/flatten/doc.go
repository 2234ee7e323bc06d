// Package flatten turns nested STAT records into flat, typed rows.
//
// Each record kind (keyword, tag, serp) has a declared, versioned Schema,
// resolved with Lookup. Column names and order come from the schema alone, so records of
// the same shape always flatten to the same layout. Values that do not fit
// their declared type fail with a *CoercionError instead of being replaced
// by a default.
package flatten
