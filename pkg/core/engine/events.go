// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/openresponses/inference-gw/pkg/core/schema"
)

// eventEmitter serializes streaming events for one response with
// monotonically increasing sequence numbers. A nil channel makes every send
// a no-op, which is how the non-streaming path reuses the streaming
// orchestrator.
type eventEmitter struct {
	ch  chan<- interface{}
	seq int
}

func newEventEmitter(ch chan<- interface{}) *eventEmitter {
	return &eventEmitter{ch: ch}
}

func (em *eventEmitter) send(ev interface{}) {
	if em.ch != nil {
		em.ch <- ev
	}
}

func (em *eventEmitter) next() int {
	n := em.seq
	em.seq++
	return n
}

func (em *eventEmitter) created(resp *schema.Response) {
	em.send(&schema.ResponseCreatedStreamingEvent{
		Type:           "response.created",
		SequenceNumber: em.next(),
		Response:       *resp,
	})
}

func (em *eventEmitter) inProgress(resp *schema.Response) {
	em.send(&schema.ResponseInProgressStreamingEvent{
		Type:           "response.in_progress",
		SequenceNumber: em.next(),
		Response:       *resp,
	})
}

func (em *eventEmitter) completed(resp *schema.Response) {
	em.send(&schema.ResponseCompletedStreamingEvent{
		Type:           "response.completed",
		SequenceNumber: em.next(),
		Response:       *resp,
	})
}

func (em *eventEmitter) failed(resp *schema.Response) {
	em.send(&schema.ResponseFailedStreamingEvent{
		Type:           "response.failed",
		SequenceNumber: em.next(),
		Response:       *resp,
	})
}

func (em *eventEmitter) incomplete(resp *schema.Response) {
	em.send(&schema.ResponseIncompleteStreamingEvent{
		Type:           "response.incomplete",
		SequenceNumber: em.next(),
		Response:       *resp,
	})
}

func (em *eventEmitter) outputItemAdded(outputIndex int, item schema.ItemField) {
	em.send(&schema.ResponseOutputItemAddedStreamingEvent{
		Type:           "response.output_item.added",
		SequenceNumber: em.next(),
		OutputIndex:    outputIndex,
		Item:           item,
	})
}

func (em *eventEmitter) outputItemDone(outputIndex int, item schema.ItemField) {
	em.send(&schema.ResponseOutputItemDoneStreamingEvent{
		Type:           "response.output_item.done",
		SequenceNumber: em.next(),
		OutputIndex:    outputIndex,
		Item:           item,
	})
}

func (em *eventEmitter) contentPartAdded(itemID string, outputIndex, contentIndex int, part schema.ContentPart) {
	em.send(&schema.ResponseContentPartAddedStreamingEvent{
		Type:           "response.content_part.added",
		SequenceNumber: em.next(),
		ItemID:         itemID,
		OutputIndex:    outputIndex,
		ContentIndex:   contentIndex,
		Part:           part,
	})
}

func (em *eventEmitter) contentPartDone(itemID string, outputIndex, contentIndex int, part schema.ContentPart) {
	em.send(&schema.ResponseContentPartDoneStreamingEvent{
		Type:           "response.content_part.done",
		SequenceNumber: em.next(),
		ItemID:         itemID,
		OutputIndex:    outputIndex,
		ContentIndex:   contentIndex,
		Part:           part,
	})
}

func (em *eventEmitter) textDelta(itemID string, outputIndex, contentIndex int, delta string) {
	em.send(&schema.ResponseOutputTextDeltaStreamingEvent{
		Type:           "response.output_text.delta",
		SequenceNumber: em.next(),
		ItemID:         itemID,
		OutputIndex:    outputIndex,
		ContentIndex:   contentIndex,
		Delta:          delta,
		Logprobs:       make([]interface{}, 0),
	})
}

func (em *eventEmitter) textDone(itemID string, outputIndex, contentIndex int, text string) {
	em.send(&schema.ResponseOutputTextDoneStreamingEvent{
		Type:           "response.output_text.done",
		SequenceNumber: em.next(),
		ItemID:         itemID,
		OutputIndex:    outputIndex,
		ContentIndex:   contentIndex,
		Text:           text,
		Logprobs:       make([]interface{}, 0),
	})
}

func (em *eventEmitter) annotationAdded(responseID string, outputIndex, contentIndex int, annotation schema.ContentPart) {
	em.send(&schema.ResponseOutputTextAnnotationAddedStreamingEvent{
		Type:         "response.output_text_annotation.added",
		ResponseID:   responseID,
		OutputIndex:  outputIndex,
		ContentIndex: contentIndex,
		Annotation:   annotation,
	})
}

func (em *eventEmitter) functionCallArgumentsDelta(responseID string, outputIndex int, delta string) {
	em.send(&schema.ResponseFunctionCallArgumentsDeltaStreamingEvent{
		Type:        "response.function_call_arguments.delta",
		ResponseID:  responseID,
		OutputIndex: outputIndex,
		Delta:       delta,
	})
}

func (em *eventEmitter) functionCallArgumentsDone(responseID string, outputIndex int, arguments string) {
	em.send(&schema.ResponseFunctionCallArgumentsDoneStreamingEvent{
		Type:        "response.function_call_arguments.done",
		ResponseID:  responseID,
		OutputIndex: outputIndex,
		Arguments:   arguments,
	})
}

func (em *eventEmitter) errorEvent(errType, message string) {
	em.send(&schema.ErrorStreamingEvent{
		Type: "error",
		Error: schema.ErrorField{
			Type:    errType,
			Message: message,
		},
	})
}
