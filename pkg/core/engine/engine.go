// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine orchestrates Responses API requests: it assembles LLM
// context from stored history, consumes provider streams through the
// citation tracker and tool-call accumulator, dispatches tool calls, and
// drives the response status machine.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openresponses/inference-gw/pkg/attest"
	"github.com/openresponses/inference-gw/pkg/core/api"
	"github.com/openresponses/inference-gw/pkg/core/citation"
	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/core/state"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
	"github.com/openresponses/inference-gw/pkg/provider"
	"github.com/openresponses/inference-gw/pkg/websearch"
)

const defaultMaxToolCalls = 10

// chainDepthLimit bounds previous_response_id traversal when rebuilding
// context, guarding against cycles in stored data.
const chainDepthLimit = 50

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrOrphanFunctionCallOutput is returned when a function_call_output
	// references no open function call on the previous response.
	ErrOrphanFunctionCallOutput = errors.New("no open function call matches the supplied call_id")
	// ErrNotCancellable is returned when cancelling a response that is not
	// queued or in progress.
	ErrNotCancellable = errors.New("response cannot be cancelled in its current status")
)

// CompletionBackend is the slice of the provider pool the engine drives.
// Implemented by *provider.Pool.
type CompletionBackend interface {
	CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (*api.ChatCompletionWithRaw, error)
	CreateChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (<-chan api.StreamEvent, error)
	RegisterSignatureHashesForChat(chatID, requestHash, responseHash string)
}

// Options carries the optional collaborators of an Engine. A nil field
// disables the corresponding tool.
type Options struct {
	WebSearch    websearch.Provider
	VectorSearch VectorSearcher
	MCP          MCPConnector
	Logger       *logging.Logger
}

// Engine is the core orchestrator for the Responses API.
type Engine struct {
	pool     CompletionBackend
	sessions state.SessionStore
	search   websearch.Provider
	vectors  VectorSearcher
	mcp      MCPConnector
	logger   *logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightRun
	bg       sync.WaitGroup
}

// inflightRun is the cancellation handle for a running response. done is
// closed when the run goroutine has exited and no longer touches the
// response object.
type inflightRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Engine.
func New(pool CompletionBackend, store state.SessionStore, opts Options) (*Engine, error) {
	if pool == nil {
		return nil, fmt.Errorf("completion backend is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.Config{})
	}
	return &Engine{
		pool:     pool,
		sessions: store,
		search:   opts.WebSearch,
		vectors:  opts.VectorSearch,
		mcp:      opts.MCP,
		logger:   logger,
		now:      time.Now,
		inflight: map[string]*inflightRun{},
	}, nil
}

// Store returns the session store.
func (e *Engine) Store() state.SessionStore {
	return e.sessions
}

// Wait blocks until all detached persistence tasks have finished. Final
// status and hash writes are dispatched in the background, so tests and
// shutdown paths use this to observe a consistent store.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// fnOutput is one function_call_output item from the request input.
type fnOutput struct {
	CallID string
	Output string
}

// fileSearchConfig holds the vector-store targets for a file_search tool.
type fileSearchConfig struct {
	vectorStoreIDs []string
	maxResults     int
}

// runState carries everything one response run needs across the prepare and
// execute phases. It is owned by a single goroutine and never shared.
type runState struct {
	req           *schema.ResponseRequest
	resp          *schema.Response
	stored        *state.StoredResponse
	resuming      bool
	requestHash   string
	model         string
	messages      []api.Message
	llmTools      []api.Tool
	functionNames map[string]bool
	available     []string
	fileSearch    *fileSearchConfig
	sources       *sourceRecorder
	hasher        *attest.ResponseHasher
	chatID        string
	usage         api.Usage
	usageKnown    bool
}

// ProcessRequest handles a non-streaming request. It reuses the streaming
// orchestrator with a no-op emitter and returns the final response.
func (e *Engine) ProcessRequest(ctx context.Context, req *schema.ResponseRequest, requestHash string) (*schema.Response, error) {
	run, err := e.prepareRun(ctx, req, requestHash)
	if err != nil {
		return nil, err
	}
	e.executeRun(ctx, run, newEventEmitter(nil))
	return run.resp, nil
}

// ProcessRequestStream handles a streaming request. Events are delivered on
// the returned channel; the channel closes when the run reaches a terminal
// status. Preparation errors (validation, unknown previous response, orphan
// call ids) are returned synchronously before any event is emitted.
func (e *Engine) ProcessRequestStream(ctx context.Context, req *schema.ResponseRequest, requestHash string) (<-chan interface{}, error) {
	run, err := e.prepareRun(ctx, req, requestHash)
	if err != nil {
		return nil, err
	}
	events := make(chan interface{}, 16)
	go func() {
		defer close(events)
		e.executeRun(ctx, run, newEventEmitter(events))
	}()
	return events, nil
}

// prepareRun validates the request, resolves resume-versus-new, rebuilds
// LLM context from stored history, prepares tool definitions and persists
// the initial response row.
func (e *Engine) prepareRun(ctx context.Context, req *schema.ResponseRequest, requestHash string) (*runState, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	model := *req.Model

	fnOutputs := functionCallOutputs(req.Input)

	var prev *state.StoredResponse
	if req.PreviousResponseID != nil && *req.PreviousResponseID != "" {
		var err error
		prev, err = e.sessions.GetResponse(ctx, *req.PreviousResponseID)
		if err != nil {
			return nil, fmt.Errorf("previous response %s: %w", *req.PreviousResponseID, err)
		}
	}
	if len(fnOutputs) > 0 {
		if prev == nil || prev.Response.Status != schema.StatusIncomplete {
			return nil, fmt.Errorf("%w: response has no pending function calls", ErrOrphanFunctionCallOutput)
		}
	}

	resuming := prev != nil && prev.Response.Status == schema.StatusIncomplete && len(fnOutputs) > 0
	if resuming {
		open := openFunctionCalls(prev.Response.Output)
		for _, out := range fnOutputs {
			if _, ok := open[out.CallID]; !ok {
				return nil, fmt.Errorf("%w: call_id %q", ErrOrphanFunctionCallOutput, out.CallID)
			}
		}
		// The supplied outputs consume their calls; the items complete in
		// place on the resumed response.
		done := "completed"
		for _, out := range fnOutputs {
			open[out.CallID].Status = &done
		}
	}

	conversationID := ""
	if req.Conversation != nil && *req.Conversation != "" {
		if _, err := e.sessions.GetConversation(ctx, *req.Conversation); err != nil {
			return nil, fmt.Errorf("conversation %s: %w", *req.Conversation, err)
		}
		conversationID = *req.Conversation
	} else if prev != nil {
		// Chained responses inherit the parent's conversation.
		conversationID = prev.ConversationID
	}

	run := &runState{
		req:         req,
		requestHash: requestHash,
		model:       model,
		resuming:    resuming,
		sources:     &sourceRecorder{},
		hasher:      attest.NewResponseHasher(),
	}

	if resuming {
		run.resp = prev.Response
		run.stored = prev
	} else {
		respID := generateID("resp_")
		resp := schema.NewResponse(respID, model)
		echoRequestParams(resp, req)
		if conversationID != "" {
			conv := conversationID
			resp.Conversation = &conv
		}
		run.resp = resp
		run.stored = &state.StoredResponse{
			Response:       resp,
			Input:          itemFieldsFromInput(req.Input),
			ConversationID: conversationID,
			RequestHash:    requestHash,
		}
		if prev != nil {
			run.stored.PreviousResponseID = prev.Response.ID
		}
	}

	messages, err := e.buildContext(ctx, run, prev, fnOutputs)
	if err != nil {
		return nil, err
	}
	run.messages = messages

	if err := e.prepareTools(ctx, run); err != nil {
		return nil, err
	}

	if resuming {
		run.stored.Input = append(run.stored.Input, itemFieldsFromInput(req.Input)...)
	}
	if err := e.sessions.SaveResponse(ctx, run.stored); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	if !resuming && prev != nil {
		// The parent's next_response_ids link is updated out of band; a
		// client can observe the child before the parent reflects it.
		e.detach(func(bgCtx context.Context) {
			if err := e.sessions.LinkResponses(bgCtx, prev.Response.ID, run.resp.ID); err != nil {
				e.logger.Error("link responses", "previous", prev.Response.ID, "next", run.resp.ID, "error", err)
			}
		})
	}

	return run, nil
}

// buildContext assembles the LLM message list: system instructions with the
// current date, replayed chain or conversation history, spliced function
// call outputs when resuming, then the new input messages.
func (e *Engine) buildContext(ctx context.Context, run *runState, prev *state.StoredResponse, fnOutputs []fnOutput) ([]api.Message, error) {
	var messages []api.Message

	sys := fmt.Sprintf("Current date: %s", e.now().UTC().Format("2006-01-02"))
	if run.req.Instructions != nil && *run.req.Instructions != "" {
		sys = *run.req.Instructions + "\n\n" + sys
	}
	messages = append(messages, api.Message{Role: "system", Content: sys})

	if prev != nil {
		chain, err := e.chainMessages(ctx, prev)
		if err != nil {
			return nil, err
		}
		messages = append(messages, chain...)
	} else if run.req.Conversation != nil && *run.req.Conversation != "" {
		conv, err := e.sessions.GetConversation(ctx, *run.req.Conversation)
		if err != nil {
			return nil, fmt.Errorf("conversation %s: %w", *run.req.Conversation, err)
		}
		messages = append(messages, messagesFromItems(conv.Items)...)
	}

	if run.resuming {
		// Tool results must directly follow the assistant turn that issued
		// the calls; any other input item in the same request is ordered
		// after them.
		for _, out := range fnOutputs {
			messages = append(messages, api.Message{
				Role:       "tool",
				Content:    out.Output,
				ToolCallID: out.CallID,
			})
		}
		messages = append(messages, extractInputMessages(run.req.Input, true)...)
	} else {
		messages = append(messages, extractInputMessages(run.req.Input, false)...)
	}

	return messages, nil
}

// chainMessages replays the previous_response_id chain oldest first,
// converting each stored response's input and output items to messages.
func (e *Engine) chainMessages(ctx context.Context, tail *state.StoredResponse) ([]api.Message, error) {
	var chain []*state.StoredResponse
	cur := tail
	for depth := 0; cur != nil && depth < chainDepthLimit; depth++ {
		chain = append(chain, cur)
		if cur.PreviousResponseID == "" {
			break
		}
		parent, err := e.sessions.GetResponse(ctx, cur.PreviousResponseID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("load response chain: %w", err)
		}
		cur = parent
	}

	var messages []api.Message
	for i := len(chain) - 1; i >= 0; i-- {
		messages = append(messages, messagesFromItems(orderedTurnItems(chain[i]))...)
	}
	return messages, nil
}

// orderedTurnItems merges one stored turn's input and output items for
// replay. A function_call_output submitted on resume lives in the turn's
// input but must replay directly after the function_call batch it answers,
// never before the assistant turn that issued the call, so matched outputs
// are spliced out of input order and behind their calls. Unmatched
// function_call_output items (caller-supplied context) keep their input
// position.
func orderedTurnItems(stored *state.StoredResponse) []schema.ItemField {
	resumeOutputs := map[string]schema.ItemField{}
	var items []schema.ItemField
	for _, item := range stored.Input {
		if item.Type == "function_call_output" && item.CallID != nil && hasFunctionCall(stored.Response.Output, *item.CallID) {
			resumeOutputs[*item.CallID] = item
			continue
		}
		items = append(items, item)
	}

	// Outputs for a consecutive function_call batch are held back until the
	// batch ends, keeping parallel calls in one assistant turn on replay.
	var pending []schema.ItemField
	flush := func() {
		items = append(items, pending...)
		pending = nil
	}
	for _, item := range stored.Response.Output {
		if item.Type == "function_call" {
			items = append(items, item)
			if item.CallID != nil {
				if out, ok := resumeOutputs[*item.CallID]; ok {
					pending = append(pending, out)
					delete(resumeOutputs, *item.CallID)
				}
			}
			continue
		}
		flush()
		items = append(items, item)
	}
	flush()
	return items
}

func hasFunctionCall(output []schema.ItemField, callID string) bool {
	for _, item := range output {
		if item.Type == "function_call" && item.CallID != nil && *item.CallID == callID {
			return true
		}
	}
	return false
}

// prepareTools converts the request's declared tools into chat-completion
// tool definitions. Built-in schemas are hardcoded, MCP schemas are
// discovered from the connected servers, function schemas pass through.
func (e *Engine) prepareTools(ctx context.Context, run *runState) error {
	run.functionNames = map[string]bool{}

	for _, t := range run.req.Tools {
		switch t.Type {
		case "function":
			run.functionNames[t.Name] = true
			tool := api.Tool{
				Type: "function",
				Function: api.ToolFunction{
					Name:       t.Name,
					Parameters: t.Parameters,
					Strict:     t.Strict,
				},
			}
			if t.Description != nil {
				tool.Function.Description = *t.Description
			}
			run.llmTools = append(run.llmTools, tool)
			run.available = append(run.available, t.Name)

		case "web_search", "web_search_preview":
			if e.search == nil {
				e.logger.Warn("web_search tool requested but no search provider configured")
				continue
			}
			run.llmTools = append(run.llmTools, webSearchToolDefinition())
			run.available = append(run.available, "web_search")

		case "file_search":
			if e.vectors == nil {
				e.logger.Warn("file_search tool requested but no vector searcher configured")
				continue
			}
			maxResults := 10
			if t.MaxNumResults != nil && *t.MaxNumResults > 0 {
				maxResults = *t.MaxNumResults
			}
			run.fileSearch = &fileSearchConfig{
				vectorStoreIDs: t.VectorStoreIDs,
				maxResults:     maxResults,
			}
			run.llmTools = append(run.llmTools, fileSearchToolDefinition())
			run.available = append(run.available, "file_search")

		case "mcp":
			if e.mcp == nil {
				return fmt.Errorf("%w: mcp tools are not configured", ErrInvalidRequest)
			}
			tools, err := e.mcp.ListTools(ctx, t.ServerLabel)
			if err != nil {
				return fmt.Errorf("mcp server %q: %w", t.ServerLabel, err)
			}
			for _, ti := range tools {
				name := t.ServerLabel + ":" + ti.Name
				desc := ti.Description
				run.llmTools = append(run.llmTools, api.Tool{
					Type: "function",
					Function: api.ToolFunction{
						Name:        name,
						Description: desc,
						Parameters:  ti.InputSchema,
					},
				})
				run.available = append(run.available, name)
			}

		default:
			e.logger.Warn("ignoring unsupported tool type", "type", t.Type)
		}
	}

	return nil
}

func (e *Engine) buildExecutors(run *runState) []ToolExecutor {
	executors := []ToolExecutor{errorExecutor{}}
	if e.search != nil {
		executors = append(executors, &webSearchExecutor{
			provider:   e.search,
			recorder:   run.sources,
			maxResults: 5,
		})
	}
	if e.vectors != nil && run.fileSearch != nil {
		executors = append(executors, &fileSearchExecutor{
			searcher:       e.vectors,
			vectorStoreIDs: run.fileSearch.vectorStoreIDs,
			maxResults:     run.fileSearch.maxResults,
		})
	}
	if e.mcp != nil {
		executors = append(executors, &mcpExecutor{connector: e.mcp})
	}
	executors = append(executors, &functionExecutor{names: run.functionNames})
	return executors
}

// executeRun drives the agent loop for one response until a terminal
// status. It owns the run exclusively; only the cancel function escapes to
// other goroutines.
func (e *Engine) executeRun(ctx context.Context, run *runState, em *eventEmitter) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.trackInflight(run.resp.ID, cancel)
	defer e.untrackInflight(run.resp.ID)

	resp := run.resp
	em.created(resp)
	resp.MarkInProgress()
	em.inProgress(resp)

	d := newDispatcher(e.buildExecutors(run))

	maxIters := defaultMaxToolCalls
	if run.req.MaxToolCalls != nil && *run.req.MaxToolCalls > 0 {
		maxIters = *run.req.MaxToolCalls
	}

	for iter := 0; iter < maxIters; iter++ {
		llmReq := e.buildLLMRequest(run)
		stream, err := e.pool.CreateChatCompletionStream(ctx, llmReq, run.requestHash)
		if err != nil {
			e.finishFailed(run, em, fmt.Sprintf("provider call failed: %v", err))
			return
		}

		outcome := e.consumeStream(ctx, run, em, stream)
		if ctx.Err() != nil {
			e.finishCancelled(run)
			return
		}
		if outcome.err != nil {
			e.finishFailed(run, em, fmt.Sprintf("provider stream failed: %v", outcome.err))
			return
		}

		if outcome.finishReason == api.FinishReasonToolCalls && len(outcome.calls) > 0 {
			done, failMsg := e.handleToolCalls(ctx, run, em, d, outcome.calls)
			if failMsg != "" {
				e.finishFailed(run, em, failMsg)
				return
			}
			if done {
				// Paused for external function execution.
				e.finishIncomplete(run, em)
				return
			}
			continue
		}

		break
	}

	e.finishCompleted(run, em)
}

// streamOutcome is what one provider stream contributed to the run. err is
// set when the stream ended on a terminal transport failure.
type streamOutcome struct {
	finishReason string
	calls        []ToolCallInfo
	err          error
}

// consumeStream reads one provider stream to the end: raw bytes feed the
// response hasher, text deltas pass through the citation tracker before
// emission, tool-call deltas accumulate, and the first chunk's id registers
// the pending signature hashes.
func (e *Engine) consumeStream(ctx context.Context, run *runState, em *eventEmitter, stream <-chan api.StreamEvent) streamOutcome {
	resp := run.resp
	tracker := citation.NewTracker()
	accum := newToolCallAccumulator()

	outputIndex := len(resp.Output)
	contentIndex := 0
	messageItemID := ""
	messageOpened := false
	emittedLen := 0
	citationsSeen := 0
	var annotations []schema.Annotation
	var finishReason string
	var streamErr error

	openMessage := func() {
		if messageOpened {
			return
		}
		messageItemID = generateID("msg_")
		role := "assistant"
		status := "in_progress"
		em.outputItemAdded(outputIndex, schema.ItemField{
			Type:    "message",
			ID:      messageItemID,
			Role:    &role,
			Status:  &status,
			Content: []schema.ContentPart{},
		})
		empty := ""
		em.contentPartAdded(messageItemID, outputIndex, contentIndex, schema.ContentPart{
			Type: "output_text",
			Text: &empty,
		})
		messageOpened = true
	}

	handleCitations := func(citations []citation.Citation) {
		citationsSeen += len(citations)
		for _, c := range citations {
			ann, ok := e.annotationFor(run, c)
			if !ok {
				continue
			}
			annotations = append(annotations, ann)
			em.annotationAdded(resp.ID, outputIndex, contentIndex, schema.ContentPart{
				Type:       "output_text_annotation",
				StartIndex: &ann.StartIndex,
				EndIndex:   &ann.EndIndex,
				Annotations: []schema.Annotation{
					ann,
				},
			})
		}
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-stream:
			if !ok {
				break loop
			}
			if ev.Err != nil {
				if ev.Terminal {
					streamErr = ev.Err
					break loop
				}
				e.logger.Warn("stream decode error", "error", ev.Err)
				continue
			}
			chunk := ev.Chunk
			if chunk == nil {
				continue
			}
			run.hasher.Write(ev.RawBytes)

			if run.chatID == "" && chunk.ID != "" {
				run.chatID = chunk.ID
				e.pool.RegisterSignatureHashesForChat(run.chatID, run.requestHash, provider.PendingResponseHash)
			}
			if chunk.Usage != nil {
				run.usage.PromptTokens += chunk.Usage.PromptTokens
				run.usage.CompletionTokens += chunk.Usage.CompletionTokens
				run.usage.TotalTokens += chunk.Usage.TotalTokens
				run.usageKnown = true
			}

			for _, choice := range chunk.Choices {
				if choice.FinishReason != nil {
					finishReason = *choice.FinishReason
				}
				for _, tc := range choice.Delta.ToolCalls {
					accum.Add(tc)
					if tc.Function.Arguments != "" {
						em.functionCallArgumentsDelta(resp.ID, tc.Index, tc.Function.Arguments)
					}
				}
				if choice.Delta.Content == "" {
					continue
				}
				clean, citations := tracker.AddToken(choice.Delta.Content)
				if clean != "" {
					openMessage()
					em.textDelta(messageItemID, outputIndex, contentIndex, clean)
					emittedLen += len(clean)
				}
				handleCitations(citations)
			}
		}
	}

	fullText, allCitations := tracker.Finalize()
	if tail := fullText[emittedLen:]; tail != "" {
		openMessage()
		em.textDelta(messageItemID, outputIndex, contentIndex, tail)
	}
	if citationsSeen < len(allCitations) {
		handleCitations(allCitations[citationsSeen:])
	}

	if messageOpened {
		text := fullText
		em.textDone(messageItemID, outputIndex, contentIndex, text)
		part := schema.ContentPart{
			Type:        "output_text",
			Text:        &text,
			Annotations: annotations,
		}
		em.contentPartDone(messageItemID, outputIndex, contentIndex, part)
		role := "assistant"
		status := "completed"
		item := schema.ItemField{
			Type:    "message",
			ID:      messageItemID,
			Role:    &role,
			Status:  &status,
			Content: []schema.ContentPart{part},
		}
		em.outputItemDone(outputIndex, item)
		resp.Output = append(resp.Output, item)
		run.messages = append(run.messages, api.Message{Role: "assistant", Content: text})
	}

	var calls []ToolCallInfo
	if !accum.Empty() {
		calls = convertToolCalls(accum.Drain(), run.functionNames, run.available)
	}
	return streamOutcome{finishReason: finishReason, calls: calls, err: streamErr}
}

// handleToolCalls runs the two-pass dispatch: server-side calls (error,
// built-in, MCP) execute first, then all external function calls in the
// batch are recorded before the single pause. Returns done=true when the
// response paused, or a failure message when a tool hit its failure cap.
func (e *Engine) handleToolCalls(ctx context.Context, run *runState, em *eventEmitter, d *dispatcher, calls []ToolCallInfo) (done bool, failMsg string) {
	resp := run.resp

	var externals []ToolCallInfo
	type executed struct {
		call   ToolCallInfo
		result string
	}
	var results []executed

	for _, call := range calls {
		if exec := d.executorFor(call.ToolType); exec != nil {
			if _, isExternal := exec.(*functionExecutor); isExternal {
				externals = append(externals, call)
				continue
			}
		}
		result, err := d.Dispatch(ctx, call)
		if err != nil {
			var fcr *FunctionCallRequired
			if errors.As(err, &fcr) {
				externals = append(externals, call)
				continue
			}
			return false, err.Error()
		}
		results = append(results, executed{call: call, result: result})

		if call.IsError() {
			// Diagnostic calls produce no output item; the arguments close
			// at the response's current output position.
			em.functionCallArgumentsDone(resp.ID, len(resp.Output), call.RawArguments)
		} else {
			e.recordServerSideCall(run, em, call, result)
		}
	}

	// One assistant turn carries every call in the batch so results and
	// pending outputs can be spliced directly after it.
	assistant := api.Message{Role: "assistant"}
	for _, call := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, api.ToolCall{
			ID:   callIDOr(call),
			Type: "function",
			Function: api.ToolCallFunction{
				Name:      call.ToolType,
				Arguments: call.RawArguments,
			},
		})
	}
	run.messages = append(run.messages, assistant)
	for _, r := range results {
		run.messages = append(run.messages, api.Message{
			Role:       "tool",
			Content:    r.result,
			ToolCallID: callIDOr(r.call),
		})
	}

	if len(externals) > 0 {
		for _, call := range externals {
			status := "in_progress"
			callID := call.ID
			name := call.ToolType
			args := call.RawArguments
			item := schema.ItemField{
				Type:      "function_call",
				ID:        generateID("fc_"),
				CallID:    &callID,
				Name:      &name,
				Arguments: &args,
				Status:    &status,
			}
			em.functionCallArgumentsDone(resp.ID, len(resp.Output), call.RawArguments)
			em.outputItemAdded(len(resp.Output), item)
			resp.Output = append(resp.Output, item)
		}
		return true, ""
	}

	return false, ""
}

// recordServerSideCall appends the function_call and function_call_output
// items for a tool executed inside the gateway.
func (e *Engine) recordServerSideCall(run *runState, em *eventEmitter, call ToolCallInfo, result string) {
	resp := run.resp
	status := "completed"
	callID := call.ID
	name := call.ToolType
	args := call.RawArguments

	callItem := schema.ItemField{
		Type:      "function_call",
		ID:        generateID("fc_"),
		CallID:    &callID,
		Name:      &name,
		Arguments: &args,
		Status:    &status,
	}
	em.functionCallArgumentsDone(resp.ID, len(resp.Output), call.RawArguments)
	em.outputItemAdded(len(resp.Output), callItem)
	em.outputItemDone(len(resp.Output), callItem)
	resp.Output = append(resp.Output, callItem)

	output := result
	outputItem := schema.ItemField{
		Type:   "function_call_output",
		ID:     generateID("fco_"),
		CallID: &callID,
		Output: &output,
	}
	em.outputItemAdded(len(resp.Output), outputItem)
	em.outputItemDone(len(resp.Output), outputItem)
	resp.Output = append(resp.Output, outputItem)
}

// annotationFor resolves a completed citation against the sources recorded
// by web search in this run.
func (e *Engine) annotationFor(run *runState, c citation.Citation) (schema.Annotation, bool) {
	src, ok := run.sources.get(c.SourceID)
	if !ok {
		return schema.Annotation{}, false
	}
	return schema.Annotation{
		Type:       "url_citation",
		StartIndex: c.StartIndex,
		EndIndex:   c.EndIndex,
		URL:        src.URL,
		Title:      src.Title,
	}, true
}

func (e *Engine) buildLLMRequest(run *runState) *api.ChatCompletionRequest {
	req := run.req
	llmReq := &api.ChatCompletionRequest{
		Model:       run.model,
		Messages:    run.messages,
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.FrequencyPenalty != nil {
		llmReq.FrequencyPenalty = req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		llmReq.PresencePenalty = req.PresencePenalty
	}
	if req.MaxOutputTokens != nil {
		llmReq.MaxCompletionTokens = req.MaxOutputTokens
	}
	if len(run.llmTools) > 0 {
		llmReq.Tools = run.llmTools
		llmReq.ToolChoice = req.ToolChoice
		llmReq.ParallelToolCalls = req.ParallelToolCalls
	}
	if req.Seed != nil {
		seed := int64(*req.Seed)
		llmReq.Seed = &seed
	}
	if req.Text != nil && req.Text.Format.Type != "" && req.Text.Format.Type != "text" {
		llmReq.ResponseFormat = &api.ResponseFormat{Type: req.Text.Format.Type}
	}
	return llmReq
}

// Terminal transitions. Final persistence and hash registration run as
// detached tasks: the client-visible stream ends before the store reflects
// the terminal status, so readers needing strong consistency poll.

func (e *Engine) finishCompleted(run *runState, em *eventEmitter) {
	run.resp.Usage = e.computeUsage(run)
	run.resp.MarkCompleted()
	em.completed(run.resp)
	e.persistFinal(run)
}

func (e *Engine) finishIncomplete(run *runState, em *eventEmitter) {
	run.resp.Usage = e.computeUsage(run)
	run.resp.MarkIncomplete(schema.IncompleteReasonFunctionCall)
	em.incomplete(run.resp)
	e.persistFinal(run)
}

func (e *Engine) finishFailed(run *runState, em *eventEmitter, message string) {
	em.errorEvent("api_error", message)
	role := "assistant"
	status := "completed"
	text := message
	run.resp.Output = append(run.resp.Output, schema.ItemField{
		Type:   "message",
		ID:     generateID("msg_"),
		Role:   &role,
		Status: &status,
		Content: []schema.ContentPart{
			{Type: "output_text", Text: &text},
		},
	})
	run.resp.MarkFailed("api_error", "provider_error", message)
	em.failed(run.resp)
	e.persistFinal(run)
}

func (e *Engine) finishCancelled(run *runState) {
	run.resp.MarkCancelled()
	e.persistFinal(run)
}

// persistFinal completes the response hash, registers it with the pool and
// saves the final row, all detached from the client-visible stream.
func (e *Engine) persistFinal(run *runState) {
	run.hasher.Write(api.SSEDone)
	responseHash := run.hasher.Sum()

	run.stored.ResponseHash = responseHash
	if run.chatID != "" {
		run.stored.ChatID = run.chatID
		run.stored.InferenceID = attest.InferenceID(run.chatID)
	}

	chatID := run.chatID
	requestHash := run.requestHash
	stored := run.stored
	e.detach(func(ctx context.Context) {
		if chatID != "" {
			e.pool.RegisterSignatureHashesForChat(chatID, requestHash, responseHash)
		}
		if err := e.sessions.SaveResponse(ctx, stored); err != nil {
			e.logger.Error("persist final response", "response_id", stored.Response.ID, "error", err)
		}
		e.appendToConversation(ctx, stored)
	})
}

// appendToConversation mirrors the turn's input and output items into the
// conversation record when the response belongs to one.
func (e *Engine) appendToConversation(ctx context.Context, stored *state.StoredResponse) {
	if stored.ConversationID == "" || stored.Response.Status != schema.StatusCompleted {
		return
	}
	items := append([]schema.ItemField{}, stored.Input...)
	items = append(items, stored.Response.Output...)
	if err := e.sessions.AppendConversationItems(ctx, stored.ConversationID, items); err != nil {
		e.logger.Error("append conversation items", "conversation_id", stored.ConversationID, "error", err)
	}
}

func (e *Engine) computeUsage(run *runState) *schema.UsageField {
	if run.usageKnown {
		return &schema.UsageField{
			InputTokens:         run.usage.PromptTokens,
			OutputTokens:        run.usage.CompletionTokens,
			TotalTokens:         run.usage.TotalTokens,
			InputTokensDetails:  schema.InputTokensDetails{},
			OutputTokensDetails: schema.OutputTokensDetails{},
		}
	}

	inputLen := 0
	for _, m := range run.messages {
		if m.Role == "assistant" && m.Content != "" {
			continue
		}
		inputLen += len(m.Content)
	}
	outputLen := 0
	for _, item := range run.resp.Output {
		for _, part := range item.Content {
			if part.Text != nil {
				outputLen += len(*part.Text)
			}
		}
		if item.Arguments != nil {
			outputLen += len(*item.Arguments)
		}
	}
	in := estimateTokens(inputLen)
	out := estimateTokens(outputLen)
	return &schema.UsageField{
		InputTokens:         in,
		OutputTokens:        out,
		TotalTokens:         in + out,
		InputTokensDetails:  schema.InputTokensDetails{},
		OutputTokensDetails: schema.OutputTokensDetails{},
	}
}

func estimateTokens(chars int) int {
	n := chars / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CancelResponse interrupts an in-flight response and marks it cancelled.
// Output already emitted to the client is not retracted. A live run is
// interrupted first and its goroutine waited out, so the stored response is
// never read or rewritten while the run still mutates it.
func (e *Engine) CancelResponse(ctx context.Context, responseID string) (*schema.Response, error) {
	e.mu.Lock()
	run, inflight := e.inflight[responseID]
	e.mu.Unlock()
	if inflight {
		run.cancel()
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stored, err := e.sessions.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	switch stored.Response.Status {
	case schema.StatusCancelled:
		// The interrupted run already marked and persisted the cancellation.
		return stored.Response, nil
	case schema.StatusQueued, schema.StatusInProgress:
		stored.Response.MarkCancelled()
		if err := e.sessions.SaveResponse(ctx, stored); err != nil {
			return nil, fmt.Errorf("save cancelled response: %w", err)
		}
		return stored.Response, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotCancellable, stored.Response.Status)
	}
}

// GetResponse returns a stored response by id.
func (e *Engine) GetResponse(ctx context.Context, responseID string) (*schema.Response, error) {
	stored, err := e.sessions.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	return stored.Response, nil
}

// GetResponseInputItems returns the input items submitted for a response.
func (e *Engine) GetResponseInputItems(ctx context.Context, responseID string) ([]schema.ItemField, error) {
	stored, err := e.sessions.GetResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	return stored.Input, nil
}

// DeleteResponse removes a stored response.
func (e *Engine) DeleteResponse(ctx context.Context, responseID string) error {
	return e.sessions.DeleteResponse(ctx, responseID)
}

func (e *Engine) trackInflight(responseID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.inflight[responseID] = &inflightRun{cancel: cancel, done: make(chan struct{})}
	e.mu.Unlock()
}

func (e *Engine) untrackInflight(responseID string) {
	e.mu.Lock()
	run, ok := e.inflight[responseID]
	delete(e.inflight, responseID)
	e.mu.Unlock()
	if ok {
		close(run.done)
	}
}

// detach runs fn on a background goroutine with a bounded timeout,
// decoupled from the request context.
func (e *Engine) detach(fn func(ctx context.Context)) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func callIDOr(call ToolCallInfo) string {
	if call.ID != "" {
		return call.ID
	}
	return generateID("call_")
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

// echoRequestParams copies request parameters onto the response object.
func echoRequestParams(resp *schema.Response, req *schema.ResponseRequest) {
	resp.PreviousResponseID = req.PreviousResponseID
	resp.Conversation = req.Conversation
	resp.Instructions = req.Instructions
	resp.Tools = convertToolsToResponse(req.Tools)
	if req.ToolChoice != nil {
		resp.ToolChoice = req.ToolChoice
	}
	if req.Reasoning != nil {
		resp.Reasoning = &schema.ReasoningConfig{
			Type:   req.Reasoning.Type,
			Effort: req.Reasoning.Effort,
			Budget: req.Reasoning.Budget,
		}
	}
	if req.Temperature != nil {
		resp.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		resp.TopP = *req.TopP
	}
	resp.MaxOutputTokens = req.MaxOutputTokens
	resp.MaxToolCalls = req.MaxToolCalls
	if req.FrequencyPenalty != nil {
		resp.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		resp.PresencePenalty = *req.PresencePenalty
	}
	if req.Truncation != nil {
		resp.Truncation = *req.Truncation
	}
	if req.ParallelToolCalls != nil {
		resp.ParallelToolCalls = *req.ParallelToolCalls
	}
	if req.Text != nil {
		resp.Text = *req.Text
	}
	if req.TopLogprobs != nil {
		resp.TopLogprobs = *req.TopLogprobs
	}
	resp.ServiceTier = req.ServiceTier
	if req.Store != nil {
		resp.Store = *req.Store
	}
	resp.Metadata = req.Metadata
}

func convertToolsToResponse(reqTools []schema.ResponsesToolParam) []schema.ResponsesTool {
	respTools := make([]schema.ResponsesTool, 0, len(reqTools))
	for _, t := range reqTools {
		respTools = append(respTools, schema.ResponsesTool{
			Type:              t.Type,
			Name:              t.Name,
			Description:       t.Description,
			Parameters:        t.Parameters,
			Strict:            t.Strict,
			ServerLabel:       t.ServerLabel,
			SearchContextSize: t.SearchContextSize,
			UserLocation:      t.UserLocation,
			VectorStoreIDs:    t.VectorStoreIDs,
			MaxNumResults:     t.MaxNumResults,
			RankingOptions:    t.RankingOptions,
			Filters:           t.Filters,
		})
	}
	return respTools
}

// webSearchToolDefinition is the hardcoded schema for the web_search
// built-in.
func webSearchToolDefinition() api.Tool {
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        "web_search",
			Description: "Search the web for current information. Returns numbered sources to cite with [s:N]...[/s:N] tags.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query.",
						"maxLength":   400,
					},
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of results to return.",
						"minimum":     1,
						"maximum":     20,
					},
					"country": map[string]interface{}{
						"type":        "string",
						"description": "Two-letter country code biasing the results.",
					},
					"freshness": map[string]interface{}{
						"type":        "string",
						"description": "Restrict results by age, e.g. pd, pw, pm, py.",
					},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		},
	}
}

func fileSearchToolDefinition() api.Tool {
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        "file_search",
			Description: "Search files in the configured vector stores for relevant content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query to find relevant file content.",
					},
				},
				"required":             []string{"query"},
				"additionalProperties": false,
			},
		},
	}
}

// functionCallOutputs extracts function_call_output items from the request
// input.
func functionCallOutputs(input interface{}) []fnOutput {
	items, ok := input.([]interface{})
	if !ok {
		return nil
	}
	var outputs []fnOutput
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "function_call_output" {
			continue
		}
		callID, _ := m["call_id"].(string)
		output, _ := m["output"].(string)
		if callID != "" {
			outputs = append(outputs, fnOutput{CallID: callID, Output: output})
		}
	}
	return outputs
}

// openFunctionCalls indexes the in-progress function_call items of a
// response by call id.
func openFunctionCalls(output []schema.ItemField) map[string]*schema.ItemField {
	open := map[string]*schema.ItemField{}
	for i := range output {
		item := &output[i]
		if item.Type != "function_call" || item.CallID == nil {
			continue
		}
		if item.Status != nil && *item.Status == "in_progress" {
			open[*item.CallID] = item
		}
	}
	return open
}

// extractInputMessages parses the Responses API input field into chat
// messages. When skipFunctionOutputs is set (the resume path), the
// function_call_output items are handled separately to preserve the
// tool-result ordering invariant.
func extractInputMessages(input interface{}, skipFunctionOutputs bool) []api.Message {
	switch v := input.(type) {
	case string:
		return []api.Message{{Role: "user", Content: v}}
	case []interface{}:
		var messages []api.Message
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			itemType, _ := m["type"].(string)
			switch itemType {
			case "message", "":
				role, _ := m["role"].(string)
				if role == "" {
					role = "user"
				}
				if content := extractContentText(m["content"]); content != "" {
					messages = append(messages, api.Message{Role: role, Content: content})
				}
			case "function_call_output":
				if skipFunctionOutputs {
					continue
				}
				callID, _ := m["call_id"].(string)
				output, _ := m["output"].(string)
				if callID != "" {
					messages = append(messages, api.Message{
						Role:       "tool",
						Content:    output,
						ToolCallID: callID,
					})
				}
			case "function_call":
				callID, _ := m["call_id"].(string)
				name, _ := m["name"].(string)
				args, _ := m["arguments"].(string)
				if name != "" {
					messages = append(messages, api.Message{
						Role: "assistant",
						ToolCalls: []api.ToolCall{{
							ID:   callID,
							Type: "function",
							Function: api.ToolCallFunction{
								Name:      name,
								Arguments: args,
							},
						}},
					})
				}
			}
		}
		return messages
	default:
		return nil
	}
}

// extractContentText flattens a content value that is either a string or an
// array of text parts.
func extractContentText(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
	case []interface{}:
		var parts []string
		for _, p := range c {
			pm, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			if t, ok := pm["text"].(string); ok && t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

// itemFieldsFromInput converts the request input into storable items.
func itemFieldsFromInput(input interface{}) []schema.ItemField {
	switch v := input.(type) {
	case string:
		role := "user"
		text := v
		return []schema.ItemField{{
			Type:    "message",
			ID:      generateID("msg_"),
			Role:    &role,
			Content: []schema.ContentPart{{Type: "input_text", Text: &text}},
		}}
	case []interface{}:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var items []schema.ItemField
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = generateID("item_")
			}
		}
		return items
	default:
		return nil
	}
}

// messagesFromItems replays stored items as chat messages. Consecutive
// function_call items collapse into one assistant turn so tool results can
// directly follow it.
func messagesFromItems(items []schema.ItemField) []api.Message {
	var messages []api.Message
	var pendingCalls []api.ToolCall

	flushCalls := func() {
		if len(pendingCalls) == 0 {
			return
		}
		messages = append(messages, api.Message{Role: "assistant", ToolCalls: pendingCalls})
		pendingCalls = nil
	}

	for _, item := range items {
		switch item.Type {
		case "message":
			flushCalls()
			role := "user"
			if item.Role != nil {
				role = *item.Role
			}
			var content strings.Builder
			for _, part := range item.Content {
				if part.Text != nil {
					content.WriteString(*part.Text)
				}
			}
			if content.Len() > 0 {
				messages = append(messages, api.Message{Role: role, Content: content.String()})
			}
		case "function_call":
			call := api.ToolCall{Type: "function"}
			if item.CallID != nil {
				call.ID = *item.CallID
			}
			if item.Name != nil {
				call.Function.Name = *item.Name
			}
			if item.Arguments != nil {
				call.Function.Arguments = *item.Arguments
			}
			pendingCalls = append(pendingCalls, call)
		case "function_call_output":
			flushCalls()
			msg := api.Message{Role: "tool"}
			if item.CallID != nil {
				msg.ToolCallID = *item.CallID
			}
			if item.Output != nil {
				msg.Content = *item.Output
			}
			messages = append(messages, msg)
		}
	}
	flushCalls()
	return messages
}
