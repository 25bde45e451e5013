package workflow

import (
	"strings"
	"testing"
)

func TestDetectMultiAgentQuery(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"compare BERT and GPT on GLUE", true},
		{"what is the difference between dense and sparse retrieval", true},
		{"summarize both approaches", true},
		{"what is RAG? how does it scale?", true},
		{"first explain embeddings, then cover reranking", true},
		{"1. list the datasets 2. describe the metrics", true},
		{"what is retrieval augmented generation", false},
		{"summarize this paper", false},
		{"", false},
	}
	for _, tc := range cases {
		got, reasons := DetectMultiAgentQuery(tc.query)
		if got != tc.want {
			t.Errorf("DetectMultiAgentQuery(%q) = %v, want %v", tc.query, got, tc.want)
		}
		if got != (len(reasons) > 0) {
			t.Errorf("DetectMultiAgentQuery(%q) verdict %v disagrees with reasons %v", tc.query, got, reasons)
		}
	}
}

func TestDetectMultiAgentQueryReasons(t *testing.T) {
	_, reasons := DetectMultiAgentQuery("compare BERT and GPT? which is faster?")
	if len(reasons) < 2 {
		t.Fatalf("expected at least two matched indicators, got %v", reasons)
	}
	joined := strings.Join(reasons, "; ")
	for _, want := range []string{"compare", "question marks"} {
		if !strings.Contains(joined, want) {
			t.Errorf("reasons %v missing indicator %q", reasons, want)
		}
	}
}
