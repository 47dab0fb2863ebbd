package upstream

import (
	"bufio"
	"context"
	"io"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/json"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
	"github.com/hsingjui/openai-to-claude/internal/sseutil"
	"github.com/hsingjui/openai-to-claude/internal/streamutil"
)

// scanBufferSize bounds a single SSE line; tool-call argument fragments
// can be large but a megabyte is far beyond anything backends emit.
const scanBufferSize = 1 << 20

// ChunkStream yields parsed backend chunks from an SSE response body. A
// producer goroutine scans lines off the wire so slow consumers never
// block the socket read loop.
type ChunkStream struct {
	reader   *streamReader
	pipeline *streamutil.Pipeline
}

func newChunkStream(ctx context.Context, reader *streamReader) *ChunkStream {
	p := streamutil.NewPipeline(ctx, 128)
	p.Go(func(ctx context.Context) error {
		return scanLines(reader, p)
	})
	p.Start()
	return &ChunkStream{reader: reader, pipeline: p}
}

func scanLines(reader *streamReader, p *streamutil.Pipeline) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	for scanner.Scan() {
		payload, done := sseutil.Payload(scanner.Bytes())
		if done {
			p.Send(streamutil.Frame{Err: io.EOF})
			return nil
		}
		if payload == nil {
			continue
		}
		// The scanner reuses its buffer; the frame must own its bytes.
		line := make([]byte, len(payload))
		copy(line, payload)
		if !p.Send(streamutil.Frame{Data: line}) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		p.Send(streamutil.Frame{Err: apierror.Transport(err)})
	}
	return nil
}

// Recv returns the next chunk. io.EOF marks the end of the source,
// whether it ended with the [DONE] sentinel or by the body closing; the
// caller's stream translator tells the two apart by whether a
// finish_reason was ever recorded.
func (s *ChunkStream) Recv() (*openai.ChatChunk, error) {
	frame, ok := <-s.pipeline.Output()
	if !ok {
		return nil, io.EOF
	}
	if frame.Err != nil {
		return nil, frame.Err
	}

	var chunk openai.ChatChunk
	if err := json.Unmarshal(frame.Data, &chunk); err != nil {
		return nil, apierror.Contract("backend emitted a malformed stream chunk")
	}
	return &chunk, nil
}

// Close releases the underlying connection. Safe to call more than once.
func (s *ChunkStream) Close() error {
	s.pipeline.Cancel()
	return s.reader.Close()
}
