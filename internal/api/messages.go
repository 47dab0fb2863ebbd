package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/config"
	"github.com/hsingjui/openai-to-claude/internal/json"
	log "github.com/hsingjui/openai-to-claude/internal/logging"
	"github.com/hsingjui/openai-to-claude/internal/protocol/claude"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
	"github.com/hsingjui/openai-to-claude/internal/tokenizer"
	"github.com/hsingjui/openai-to-claude/internal/translator"
)

func (s *Server) handleHealth(c *gin.Context) {
	cfg := config.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"default_model": cfg.Models.Default,
	})
}

func (s *Server) handleCountTokens(c *gin.Context) {
	var req claude.CountTokensRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(c, apierror.Validation("messages must not be empty"))
		return
	}

	count := tokenizer.CountRequest(req.Messages, req.System, req.Tools)
	writeJSON(c, http.StatusOK, claude.CountTokensResponse{InputTokens: count})
}

func (s *Server) handleMessages(c *gin.Context) {
	var req claude.MessagesRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		writeError(c, apierror.Validation("invalid request body: %v", err))
		return
	}

	// One snapshot per request; a reload mid-request must not change the
	// routing decision under our feet.
	cfg := config.Current()

	chatReq, err := translator.BuildChatRequest(&req, cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	log.WithFields(map[string]any{
		"request_id":    requestID(c),
		"client_model":  req.Model,
		"backend_model": chatReq.Model,
		"stream":        req.Stream,
	}).Debugf("request translated")

	if req.Stream {
		s.streamMessages(c, cfg, &req, chatReq)
		return
	}

	resp, err := s.client(cfg).CreateChatCompletion(c.Request.Context(), chatReq)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := translator.BuildMessagesResponse(resp, req.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

// streamMessages bridges the backend chunk stream onto the client SSE
// connection. Failures before the first backend chunk are plain HTTP
// errors; once message_start is out the only way to signal failure is an
// in-stream error event.
func (s *Server) streamMessages(c *gin.Context, cfg *config.Config, req *claude.MessagesRequest, chatReq *openai.ChatRequest) {
	ctx := c.Request.Context()

	stream, err := s.client(cfg).StreamChatCompletion(ctx, chatReq)
	if err != nil {
		writeError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	st := translator.NewStreamTranslator(req.Model)

	for {
		chunk, recvErr := stream.Recv()
		if recvErr == io.EOF {
			events, doneErr := st.Done()
			if doneErr != nil {
				log.Warnf("backend stream aborted: %v", doneErr)
				if st.Started() {
					apiErr := apierror.AsError(doneErr)
					writeEvents(c, []claude.StreamEvent{claude.NewError(apiErr.Type, apiErr.Message)})
				} else {
					writeError(c, doneErr)
				}
				return
			}
			writeEvents(c, events)
			return
		}
		if recvErr != nil {
			if !st.Started() {
				writeError(c, recvErr)
				return
			}
			// Transport loss is not a backend-reported error: what was
			// already flushed stands as-is, with no synthetic block
			// closes. Only backend/contract failures close-then-error.
			if apierror.AsError(recvErr).Kind == apierror.KindUpstreamTransport {
				log.Warnf("backend stream lost: %v", recvErr)
				writeEvents(c, st.Abort(recvErr))
				return
			}
			writeEvents(c, st.Fail(recvErr))
			return
		}

		events, pushErr := st.Push(chunk)
		writeEvents(c, events)
		if pushErr != nil {
			log.Warnf("stream translation failed: %v", pushErr)
			writeEvents(c, st.Fail(pushErr))
			return
		}
	}
}

func writeEvents(c *gin.Context, events []claude.StreamEvent) {
	for _, ev := range events {
		data, err := ev.SSE()
		if err != nil {
			log.WithError(err).Errorf("failed to render stream event")
			continue
		}
		if _, err := c.Writer.Write(data); err != nil {
			return
		}
	}
	if len(events) > 0 {
		c.Writer.Flush()
	}
}

func writeJSON(c *gin.Context, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeError(c, apierror.AsError(err))
		return
	}
	c.Data(status, "application/json", data)
}

// writeError renders the canonical error envelope.
func writeError(c *gin.Context, err error) {
	apiErr := apierror.AsError(err)
	if apiErr.Raw != "" {
		log.WithField("raw", apiErr.Raw).Warnf("upstream error: %s", apiErr.Message)
	}
	data, mErr := json.Marshal(claude.ErrorResponse{
		Type:  "error",
		Error: claude.ErrorBody{Type: apiErr.Type, Message: apiErr.Message},
	})
	if mErr != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(apiErr.Status, "application/json", data)
}
