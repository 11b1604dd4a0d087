// Package ingest builds the manual index from a directory of PDF manuals.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	log "github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/index"
)

const (
	ChunkSize    = 800
	ChunkOverlap = 100

	// DefaultEmbedInterval keeps embedding requests under 1500/min.
	DefaultEmbedInterval = 40 * time.Millisecond
)

var (
	ErrNoManuals = errors.New("no PDF manuals found")
	ErrNoChunks  = errors.New("no chunks could be embedded")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Page is the text of one manual page with its tags.
type Page struct {
	Source string
	Number int
	Family family.Family
	Text   string
}

type Options struct {
	ManualsDir    string
	IndexPath     string
	EmbedInterval time.Duration
}

type Summary struct {
	Files       int
	Pages       int
	Chunks      int
	PagesFamily map[family.Family]int
}

// Families returns the families that contributed pages, sorted by name.
func (s Summary) Families() []family.Family {
	fams := make([]family.Family, 0, len(s.PagesFamily))
	for fam := range s.PagesFamily {
		fams = append(fams, fam)
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i] < fams[j] })
	return fams
}

// Run loads every manual, embeds its chunks and replaces the index at
// opts.IndexPath.
func Run(ctx context.Context, embedder Embedder, opts Options) (Summary, error) {
	pages, files, err := LoadManuals(opts.ManualsDir)
	if err != nil {
		return Summary{}, err
	}
	log.WithFields(log.Fields{"files": files, "pages": len(pages)}).Info("loaded manuals")

	summary, err := BuildIndex(ctx, pages, embedder, opts.IndexPath, opts.EmbedInterval)
	if err != nil {
		return summary, err
	}
	summary.Files = files

	log.WithFields(log.Fields{
		"files":  summary.Files,
		"pages":  summary.Pages,
		"chunks": summary.Chunks,
		"index":  opts.IndexPath,
	}).Info("ingestion complete")
	for _, fam := range summary.Families() {
		log.WithFields(log.Fields{"family": fam, "pages": summary.PagesFamily[fam]}).Info("family distribution")
	}
	return summary, nil
}

// LoadManuals reads the text of every *.pdf in dir. Files that cannot be
// read are logged and skipped.
func LoadManuals(dir string) ([]Page, int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list manuals in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, 0, fmt.Errorf("%w in %s", ErrNoManuals, dir)
	}
	sort.Strings(paths)

	var pages []Page
	for _, path := range paths {
		source := filepath.Base(path)
		filePages, err := readPDF(path)
		if err != nil {
			log.WithError(err).WithField("file", source).Warn("skipping unreadable manual")
			continue
		}
		fam := family.Infer(source)
		for i := range filePages {
			filePages[i].Source = source
			filePages[i].Family = fam
		}
		log.WithFields(log.Fields{"file": source, "family": fam, "pages": len(filePages)}).Debug("read manual")
		pages = append(pages, filePages...)
	}
	return pages, len(paths), nil
}

func readPDF(path string) (pages []Page, err error) {
	// The PDF reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

func newSplitter() textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ".", " ", ""}),
	)
}

// SplitPages splits page text into index chunks carrying the page's tags.
func SplitPages(pages []Page) ([]index.Chunk, error) {
	splitter := newSplitter()
	var chunks []index.Chunk
	for _, page := range pages {
		parts, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s page %d: %w", page.Source, page.Number, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, index.Chunk{Content: part, Source: page.Source, Family: page.Family})
		}
	}
	return chunks, nil
}

// BuildIndex embeds the pages' chunks into a fresh index file and then moves
// it over path, so searches never see a half-written index. Chunks whose
// embedding fails are skipped.
func BuildIndex(ctx context.Context, pages []Page, embedder Embedder, path string, interval time.Duration) (Summary, error) {
	summary := Summary{Pages: len(pages), PagesFamily: make(map[family.Family]int)}
	for _, p := range pages {
		summary.PagesFamily[p.Family]++
	}

	chunks, err := SplitPages(pages)
	if err != nil {
		return summary, err
	}
	log.WithField("chunks", len(chunks)).Info("embedding chunks (this may take a while)")

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	embedded := make([]index.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		if tick != nil {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-tick:
			}
		}
		vec, err := embedder.Embed(ctx, chunk.Content)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"chunk": i + 1, "source": chunk.Source}).Warn("failed to embed chunk, skipping")
			continue
		}
		chunk.Embedding = vec
		embedded = append(embedded, chunk)
		if n := len(embedded); n%50 == 0 {
			log.Infof("embedded %d/%d chunks", n, len(chunks))
		}
	}
	if len(embedded) == 0 {
		return summary, ErrNoChunks
	}

	tmpPath := path + ".tmp"
	ix, err := index.Create(tmpPath)
	if err != nil {
		return summary, err
	}
	if err := ix.Add(ctx, embedded); err != nil {
		ix.Close()
		os.Remove(tmpPath)
		return summary, fmt.Errorf("failed to write index: %w", err)
	}
	if err := ix.Close(); err != nil {
		os.Remove(tmpPath)
		return summary, fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return summary, fmt.Errorf("failed to replace index at %s: %w", path, err)
	}

	summary.Chunks = len(embedded)
	return summary, nil
}
