package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// maxChunkChars bounds the size of a single indexed passage.
const maxChunkChars = 1000

// KnowledgeBase is a full-text index over the knowledge_base/*.txt files.
type KnowledgeBase struct {
	index bleve.Index
}

func buildMapping() mapping.IndexMapping {
	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = en.AnalyzerName

	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name

	passage := mapping.NewDocumentMapping()
	passage.Dynamic = false
	passage.AddFieldMappingsAt("text", text)
	passage.AddFieldMappingsAt("source", kw)

	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = en.AnalyzerName
	idx.DefaultMapping = passage
	return idx
}

// OpenKnowledgeBase opens the index at indexPath, or builds it from the
// .txt files in dir when it does not exist yet.  An empty indexPath keeps
// the index in memory and rebuilds it on every start.
func OpenKnowledgeBase(dir, indexPath string) (*KnowledgeBase, error) {
	if indexPath != "" {
		if _, err := os.Stat(indexPath); err == nil {
			idx, err := bleve.Open(indexPath)
			if err != nil {
				return nil, fmt.Errorf("open index %s: %w", indexPath, err)
			}
			return &KnowledgeBase{index: idx}, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	docs, err := loadDocuments(dir)
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if indexPath == "" {
		idx, err = bleve.NewMemOnly(buildMapping())
	} else {
		idx, err = bleve.New(indexPath, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	kb := &KnowledgeBase{index: idx}
	if err := kb.indexDocuments(docs); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return kb, nil
}

// NewKnowledgeBase builds an in-memory index from source name to text.
func NewKnowledgeBase(docs map[string]string) (*KnowledgeBase, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, err
	}
	kb := &KnowledgeBase{index: idx}
	if err := kb.indexDocuments(docs); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return kb, nil
}

func loadDocuments(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", dir, err)
	}
	docs := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		docs[e.Name()] = string(b)
	}
	return docs, nil
}

func (kb *KnowledgeBase) indexDocuments(docs map[string]string) error {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	batch := kb.index.NewBatch()
	for _, name := range names {
		for i, chunk := range splitPassages(docs[name], maxChunkChars) {
			id := fmt.Sprintf("%s#%d", name, i)
			if err := batch.Index(id, map[string]interface{}{"text": chunk, "source": name}); err != nil {
				return err
			}
		}
	}
	return kb.index.Batch(batch)
}

// splitPassages cuts text at blank lines and packs consecutive paragraphs
// into chunks of at most limit characters.  A single paragraph longer
// than limit becomes its own chunk.
func splitPassages(text string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}

// Retrieve returns up to k passages ranked by relevance to query.
func (kb *KnowledgeBase) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"text", "source"}

	res, err := kb.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		text, _ := hit.Fields["text"].(string)
		source, _ := hit.Fields["source"].(string)
		out = append(out, Passage{Source: source, Text: text, Score: hit.Score})
	}
	return out, nil
}

// Size reports the number of indexed passages.
func (kb *KnowledgeBase) Size() (uint64, error) { return kb.index.DocCount() }

// Close releases the index.
func (kb *KnowledgeBase) Close() error { return kb.index.Close() }
