// Package batch defines the downstream consumers of transcribed text.
// A Processor receives batches of text, an optional Batcher decides how
// interim and final transcripts are grouped into batches, and a
// PhraseProvider supplies recognition hints. LogProcessor and MQTTPublisher
// are the built-in processors.
package batch
