// Package embedding maintains the vector index over the product catalogue.
//
// A Store embeds every catalogue item through an ai.Embedder, persists the
// resulting vectors with the manifest that describes them, and reloads them on
// the next start when the manifest still matches the catalogue and the active
// embedder. Queries are embedded with the embedder whose identity matches the
// loaded index so vectors from different models are never compared.
//
// # Usage
//
//	store, err := embedding.NewStore(provider.Embedder(), indexRepo,
//	    embedding.WithFallback(offline.NewEmbedder(768)),
//	    embedding.WithProgress(os.Stderr),
//	)
//	if err != nil {
//	    return err
//	}
//	defer store.Release()
//
//	index, err := store.LoadOrBuild(ctx, items)
//	vector, err := store.Embed(ctx, "quiet laptop for travel")
package embedding
