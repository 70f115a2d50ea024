// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package offline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
)

const (
	// DefaultDimension is the digest embedding width used when none is configured.
	DefaultDimension = 768

	digestSize = 64
)

// Embedder implements ai.Embedder with content-derived pseudo-embeddings.
type Embedder struct {
	dim int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a digest embedder producing vectors of width dim.
// A non-positive dim selects DefaultDimension.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{dim: dim}
}

// EmbedText returns the normalized digest vector for text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DigestVector(text, e.dim), nil
}

// EmbedTexts returns digest vectors for each text in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = DigestVector(text, e.dim)
	}
	return vectors, nil
}

// Identity names the digest vector space, including its width.
func (e *Embedder) Identity() string {
	return fmt.Sprintf("digest:blake2b-512:%d", e.dim)
}

// Dimension returns the vector width.
func (e *Embedder) Dimension() int {
	return e.dim
}

// DigestVector repeats the BLAKE2b-512 digest of text to dim*4 bytes, reads
// the bytes as little-endian uint32 words and normalizes the result.
func DigestVector(text string, dim int) []float32 {
	digest := core.Digest(text, digestSize)
	raw := make([]byte, dim*4)
	for off := 0; off < len(raw); off += len(digest) {
		copy(raw[off:], digest)
	}

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range vector {
		v := float32(binary.LittleEndian.Uint32(raw[i*4:]))
		vector[i] = v
		sumSquares += float64(v) * float64(v)
	}

	// Zero vector stays as-is
	if sumSquares == 0 {
		return vector
	}
	norm := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}
