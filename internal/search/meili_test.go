package search

import (
	"encoding/json"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestDecodeHitReadsIDAndHighlight(t *testing.T) {
	raw := meili.Hit{
		"id":         json.RawMessage(`"n7"`),
		"text":       json.RawMessage(`"buy milk"`),
		"_formatted": json.RawMessage(`{"text":"buy <mark>milk</mark>","id":"n7"}`),
	}
	hit, err := decodeHit(raw)
	if err != nil {
		t.Fatalf("decodeHit: %v", err)
	}
	if hit.ID != "n7" || hit.Snippet != "buy <mark>milk</mark>" {
		t.Fatalf("hit = %+v", hit)
	}
}

func TestDecodeHitWithoutHighlight(t *testing.T) {
	hit, err := decodeHit(meili.Hit{"id": json.RawMessage(`"n8"`)})
	if err != nil {
		t.Fatalf("decodeHit: %v", err)
	}
	if hit.ID != "n8" || hit.Snippet != "" {
		t.Fatalf("hit = %+v", hit)
	}
}
