// Package conv provides safe integer conversions for values that end up in
// fixed-width fields: cache entry lengths and window bitmap members.
package conv
