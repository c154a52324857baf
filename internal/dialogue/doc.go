// Package dialogue owns session lifecycle and turn orchestration.
//
// The Manager is the runtime's primary entry point: StartSession allocates a
// ConversationContext, ProcessTurn runs the full turn pipeline, and a
// periodic sweep ends sessions idle past the configured timeout.
//
// ProcessTurn delegates to the flow manager for analysis and skill dispatch
// and falls back to a local rule-based routing only when the flow layer
// fails outright. High-risk intents divert into a confirmation side-state
// and intents with missing required entities into clarification; both park a
// pending action on the context until the user's next input resolves it.
//
// Every turn is recorded, including failures: any panic or error inside the
// pipeline is recovered at the top level and converted into an apologetic
// failed turn, never an escaped fault.
package dialogue
