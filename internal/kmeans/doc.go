// Package kmeans implements spherical k-means clustering over unit vectors.
//
// Similarity is the dot product, so assignment picks the centroid with the
// maximum dot product and centroids are re-normalized after every update.
// Used by the IVF index to partition vectors into posting lists.
package kmeans
