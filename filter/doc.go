// Package filter turns structured query filters into a predicate tree.
//
// A Predicate is an AND of typed leaves. Each leaf carries its bound value in
// a typed field, so backends compile it without rendering literals into query
// text: the badger store evaluates it in process with Matches, and the qdrant
// mirror translates leaves into payload conditions.
//
// Color filters are resolved through the persisted color mapping when the
// predicate is built. The requested color selects a vocabulary target and the
// leaf matches every raw catalog color mapped to it. A color with no mapping
// yields a leaf with an empty value set: it matches nothing, and the filter
// name is reported by Unmatched so callers can tell an empty result from a
// filter that could not be resolved.
package filter
