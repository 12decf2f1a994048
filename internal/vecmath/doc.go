// Package vecmath provides the numeric primitives used to compare embeddings.
//
// Every embedding in a run is L2-normalized once by Normalize and then compared
// with Similarity, which is a plain dot product. For unit vectors the dot
// product equals cosine similarity, so scores lie in [-1, 1].
//
// A raw vector whose norm is exactly zero is returned unchanged by Normalize.
// It is not an error: such a vector scores 0 against everything.
package vecmath
