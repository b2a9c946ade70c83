// Package bitmap wraps 32-bit roaring bitmaps used as posting lists.
//
// LSH buckets and IVF clusters store member slots in a Bitmap; search
// unions the probed posting lists into a single candidate set with
// Union, which yields slots in ascending order.
package bitmap
