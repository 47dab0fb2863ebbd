package tokenizer

import (
	"testing"

	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
)

func TestCountText(t *testing.T) {
	if got := CountText(""); got != 0 {
		t.Errorf("empty string = %d tokens", got)
	}
	short := CountText("hello")
	long := CountText("hello world, this is a considerably longer sentence about weather")
	if short <= 0 {
		t.Errorf("short count = %d", short)
	}
	if long <= short {
		t.Errorf("longer text must count more tokens: %d vs %d", long, short)
	}
}

func TestCountRequest(t *testing.T) {
	messages := []claude.Message{
		{Role: "user", Content: []byte(`"summarize the attached report"`)},
		{Role: "assistant", Content: []byte(`[{"type":"tool_use","id":"t1","name":"read_file","input":{"path":"report.txt"}}]`)},
		{Role: "user", Content: []byte(`[{"type":"tool_result","tool_use_id":"t1","content":"quarterly numbers went up"}]`)},
	}
	tools := []claude.Tool{{Name: "read_file", Description: "Read a file from disk"}}

	total := CountRequest(messages, []byte(`"be brief"`), tools)
	if total <= 0 {
		t.Fatalf("total = %d", total)
	}

	withoutTools := CountRequest(messages, []byte(`"be brief"`), nil)
	if total <= withoutTools {
		t.Errorf("tool schemas must add tokens: %d vs %d", total, withoutTools)
	}
}

func TestCountRequestImageFlatCost(t *testing.T) {
	messages := []claude.Message{
		{Role: "user", Content: []byte(`[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"aGk="}}]`)},
	}
	if got := CountRequest(messages, nil, nil); got != 1000 {
		t.Errorf("image-only request = %d tokens, want flat 1000", got)
	}
}
