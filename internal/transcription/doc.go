// Package transcription connects captured audio to a streaming speech
// recognition service and routes its results downstream.
//
// A Recognizer opens a ResponseStream for a RequestSource; Client is the
// WebSocket implementation. ChunkRequests and SegmentRequests adapt the
// capture streamer and the VAD segmenter into request sources. Multiplexer
// consumes the responses, batches transcripts and hands them to a
// batch.Processor, reporting every final transcript on the way.
package transcription
