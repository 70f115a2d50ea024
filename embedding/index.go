package embedding

import (
	"time"

	"github.com/poiesic/advisor/storage"
)

// Index is an immutable snapshot of catalogue vectors.
// Vectors[i] belongs to ItemIDs[i]; every vector has length Dimension and
// unit norm (or is all zeros).
type Index struct {
	Identity  string
	Dimension int
	ItemIDs   []string
	Vectors   [][]float32
	BuiltAt   time.Time
}

// Len returns the number of indexed items.
func (i *Index) Len() int {
	return len(i.Vectors)
}

func (i *Index) persisted() *storage.PersistedIndex {
	return &storage.PersistedIndex{
		Manifest: storage.IndexManifest{
			Identity:  i.Identity,
			Dimension: i.Dimension,
			ItemIDs:   i.ItemIDs,
			BuiltAt:   i.BuiltAt,
		},
		Vectors: i.Vectors,
	}
}

func indexFromPersisted(p *storage.PersistedIndex) *Index {
	return &Index{
		Identity:  p.Manifest.Identity,
		Dimension: p.Manifest.Dimension,
		ItemIDs:   p.Manifest.ItemIDs,
		Vectors:   p.Vectors,
		BuiltAt:   p.Manifest.BuiltAt,
	}
}
