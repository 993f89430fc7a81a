package ragmaterialize

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/biokg/explorer/pkg/types"
)

// DocText is a source document's reconstructable body text.
type DocText struct {
	DocID   string
	DocType types.DocType
	Text    string
}

// DocSource fetches the current text of source documents, keyed by doc id,
// so chunk text can be reconstructed deterministically at materialization
// time.
type DocSource interface {
	FetchTexts(ctx context.Context, docIDs []string) (map[string]DocText, error)
}

// BQDocSource fetches document text from the paper/trial/patent tables of a
// BigQuery dataset, matching the union query the embedding build itself uses
// so reconstructed text stays byte-identical to what was originally embedded.
type BQDocSource struct {
	Client        *bigquery.Client
	ProjectID     string
	SourceDataset string
	PapersTable   string
	TrialsTable   string
	PatentsTable  string
}

// FetchTexts implements [DocSource]. Documents with no text in any source
// table (e.g. an abstract-less paper with no title either) are omitted from
// the result; callers should treat a missing doc id as "no text available".
func (s BQDocSource) FetchTexts(ctx context.Context, docIDs []string) (map[string]DocText, error) {
	out := map[string]DocText{}
	if len(docIDs) == 0 {
		return out, nil
	}

	q := s.Client.Query(fmt.Sprintf(`
		WITH paper_docs AS (
		  SELECT CONCAT('PMID:', CAST(PMID AS STRING)) AS doc_id, 'paper' AS doc_type,
		         COALESCE(NULLIF(TRIM(AbstractText), ''), NULLIF(TRIM(ArticleTitle), '')) AS text
		  FROM %s
		),
		trial_docs AS (
		  SELECT CONCAT('NCT:', nct_id) AS doc_id, 'trial' AS doc_type,
		         NULLIF(TRIM(CONCAT(
		           IFNULL(brief_summaries, ''), ' ', IFNULL(detailed_descriptions, ''), ' ',
		           IFNULL(brief_title, ''), ' ', IFNULL(official_title, ''), ' ',
		           IFNULL(conditions, ''), ' ', IFNULL(keywords, '')
		         )), '') AS text
		  FROM %s
		),
		patent_docs AS (
		  SELECT CONCAT('PATENT:', PatentId) AS doc_id, 'patent' AS doc_type,
		         NULLIF(TRIM(CONCAT(IFNULL(Title, ''), ' ', IFNULL(AbstractText, ''))), '') AS text
		  FROM %s
		)
		SELECT doc_id, doc_type, text FROM paper_docs WHERE doc_id IN UNNEST(@doc_ids) AND text IS NOT NULL
		UNION ALL
		SELECT doc_id, doc_type, text FROM trial_docs WHERE doc_id IN UNNEST(@doc_ids) AND text IS NOT NULL
		UNION ALL
		SELECT doc_id, doc_type, text FROM patent_docs WHERE doc_id IN UNNEST(@doc_ids) AND text IS NOT NULL
	`, s.table(s.PapersTable), s.table(s.TrialsTable), s.table(s.PatentsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "doc_ids", Value: docIDs}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ragmaterialize: fetch doc texts: %w", err)
	}
	for {
		var row struct {
			DocID   string `bigquery:"doc_id"`
			DocType string `bigquery:"doc_type"`
			Text    string `bigquery:"text"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ragmaterialize: fetch doc texts: scan: %w", err)
		}
		out[row.DocID] = DocText{DocID: row.DocID, DocType: types.DocType(row.DocType), Text: row.Text}
	}
	return out, nil
}

func (s BQDocSource) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.ProjectID, s.SourceDataset, name)
}
