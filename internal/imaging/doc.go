// Package imaging acquires, caches, encodes and annotates the page images of
// a MuRET package.
//
// # Acquisition
//
// A Source yields the encoded bytes of one image: RemoteSource downloads over
// HTTP(S), LocalSource reads from disk. The Acquirer turns sources into
// decoded images and persists every download under
//
//	<cache>/images/<key>
//
// where key is the first 13 hex characters of the SHA-256 of the image URL.
// Concurrent requests for the same key share one check-disk, fetch, persist
// and decode sequence, so a given URL is downloaded and written at most once.
// Each fetch has its own timeout, and downloads from throttled hosts are
// followed by a pause.
//
// # Encoding
//
// An Encoder converts acquired images into the pixels written to the dataset.
// GrayscaleEncoder resizes with nearest-neighbour sampling and converts to
// 8-bit grayscale. Crops are memoized on disk by CropCache under
//
//	<cache>/cropped/<encoder id>/<key>/<x1>_<y1>_<x2>_<y2>.<ext>
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. For
// regions, (x1,y1) is inclusive and (x2,y2) is exclusive.
//
// # Thread Safety
//
// ImageCache, Acquirer and CropCache are safe for concurrent use. Encoders are
// stateless.
package imaging
