// Package flow analyzes each turn's conversational requirements and
// dispatches it to a handling strategy.
//
// Analysis produces a Decision record (topic shift, continuation,
// clarification, emotional support, and related signals). Dispatch follows
// a fixed priority: emotional support, topic shift, clarification, context
// restoration, conversation continuation, then normal intent routing.
// Safety and empathy signals deliberately pre-empt topical routing.
//
// Topic extraction and the intent-to-skill mapping are cheap keyword and
// lookup heuristics; they are policy, not load-bearing behavior, and live
// in replaceable tables.
package flow
