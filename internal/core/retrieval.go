package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/index"
	"fissler.com/cooker-assistant/internal/metrics"
)

const (
	familyResultLimit  = 25 // Wide net; the total is truncated below
	generalResultLimit = 3
	MaxResultChunks    = 15

	NothingFoundMessage = "No information on this topic was found in the technical database."
	IndexMissingMessage = "ERROR: The technical database could not be found."
)

// ManualRetriever searches the manual index on behalf of the assistant. The
// index is opened per search so a rebuilt index is picked up without a
// restart.
type ManualRetriever struct {
	indexPath string
	embedder  Embedder
}

func NewManualRetriever(indexPath string, embedder Embedder) *ManualRetriever {
	return &ManualRetriever{indexPath: indexPath, embedder: embedder}
}

// Search returns the text of the best matching chunks: chunks of the
// customer's family first, then general documents, at most MaxResultChunks
// in total. Failures are described in the returned text.
func (r *ManualRetriever) Search(ctx context.Context, query string, sc SessionContext) string {
	fam := sc.Family
	if fam == "" {
		fam = family.General
	}
	logger := log.WithFields(log.Fields{"family": fam, "query": query})

	ix, err := index.Open(r.indexPath)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			logger.WithError(err).Error("manual index missing")
			return IndexMissingMessage
		}
		logger.WithError(err).Error("failed to open manual index")
		return fmt.Sprintf("Searching the manuals failed: %v", err)
	}
	defer ix.Close()

	results, err := r.collect(ctx, ix, query, fam)
	if err != nil {
		logger.WithError(err).Error("manual search failed")
		return fmt.Sprintf("Searching the manuals failed: %v", err)
	}
	metrics.RetrievedChunks.WithLabelValues(string(fam)).Observe(float64(len(results)))

	if len(results) == 0 {
		logger.Info("manual search returned nothing")
		return NothingFoundMessage
	}
	logger.WithFields(log.Fields{
		"chunks":       len(results),
		"first_source": results[0].Source,
		"first_family": results[0].Family,
	}).Debug("manual search complete")

	texts := make([]string, len(results))
	for i, c := range results {
		texts[i] = c.Content
	}
	return strings.Join(texts, "\n\n")
}

func (r *ManualRetriever) collect(ctx context.Context, ix *index.Index, query string, fam family.Family) ([]index.ScoredChunk, error) {
	var results []index.ScoredChunk

	if fam != family.General {
		enhanced := fmt.Sprintf("%s %s", fam, query)
		vector, err := r.embedder.Embed(ctx, enhanced)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		specific, err := ix.Search(ctx, vector, familyResultLimit, fam)
		if err != nil {
			return nil, fmt.Errorf("%s search: %w", fam, err)
		}
		results = append(results, specific...)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	general, err := ix.Search(ctx, vector, generalResultLimit, family.General)
	if err != nil {
		return nil, fmt.Errorf("general search: %w", err)
	}
	results = append(results, general...)

	if len(results) > MaxResultChunks {
		results = results[:MaxResultChunks]
	}
	return results, nil
}
